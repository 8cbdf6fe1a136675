package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	SensorSysfs      = "sysfs"
	SensorI2C        = "i2c"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputKafka   = "kafka"

	ChannelTemperature = "temperature"
	ChannelHumidity    = "humidity"

	EnvPrefix = "HTU21D"
)

type MQTTConfig struct {
	Server            string `json:"server" mapstructure:"server"`
	Username          string `json:"username" mapstructure:"username"`
	Password          string `json:"password" mapstructure:"password"`
	ClientID          string `json:"client_id" mapstructure:"client_id"`
	StateTopic        string `json:"state_topic" mapstructure:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" mapstructure:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" mapstructure:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" mapstructure:"discovery_unique_id"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

type OutputConfig struct {
	Type  string       `json:"type" mapstructure:"type"`
	MQTT  *MQTTConfig  `json:"mqtt,omitempty" mapstructure:"mqtt"`
	Kafka *KafkaConfig `json:"kafka,omitempty" mapstructure:"kafka"`
}

// ChannelConfig holds the per-channel polling interval (seconds) and the
// conversion from the raw attribute value: raw / divisor * scale + offset.
type ChannelConfig struct {
	Name              string  `json:"name" mapstructure:"name"`
	Interval          int     `json:"interval" mapstructure:"interval"`
	Divisor           float64 `json:"divisor" mapstructure:"divisor"`
	CalibrationScale  float64 `json:"calibration_scale" mapstructure:"calibration_scale"`
	CalibrationOffset float64 `json:"calibration_offset" mapstructure:"calibration_offset"`
}

type SysfsConfig struct {
	TemperaturePath string `json:"temperature_path" mapstructure:"temperature_path"`
	HumidityPath    string `json:"humidity_path" mapstructure:"humidity_path"`
}

type I2CConfig struct {
	Bus     string `json:"bus" mapstructure:"bus"`
	Address int    `json:"address" mapstructure:"address"`
}

type Config struct {
	SensorType string          `json:"sensor_type" mapstructure:"sensor_type"`
	Sysfs      SysfsConfig     `json:"sysfs" mapstructure:"sysfs"`
	I2C        I2CConfig       `json:"i2c" mapstructure:"i2c"`
	Channels   []ChannelConfig `json:"channels" mapstructure:"channels"`
	LogFile    string          `json:"log_file" mapstructure:"log_file"`
	Outputs    []OutputConfig  `json:"outputs" mapstructure:"outputs"`
	HTTPAddr   string          `json:"http_addr" mapstructure:"http_addr"`
	Debug      bool            `json:"debug" mapstructure:"debug"`
}

func DefaultChannel(name string) ChannelConfig {
	return ChannelConfig{Name: name, Interval: 1, Divisor: 1000, CalibrationScale: 1.0}
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorSysfs,
		Sysfs: SysfsConfig{
			TemperaturePath: "/sys/bus/i2c/devices/0-0040/iio:device0/in_temp_input",
			HumidityPath:    "/sys/bus/i2c/devices/0-0040/iio:device0/in_humidityrelative_input",
		},
		I2C: I2CConfig{Bus: "0", Address: 0x40},
		Channels: []ChannelConfig{
			DefaultChannel(ChannelTemperature),
			DefaultChannel(ChannelHumidity),
		},
	}
}

// Channel returns the configuration of the named channel, falling back to
// the defaults when it is not configured.
func (c Config) Channel(name string) ChannelConfig {
	for _, ch := range c.Channels {
		if strings.EqualFold(ch.Name, name) {
			return ch
		}
	}
	return DefaultChannel(name)
}

func (c *Config) channelRef(name string) *ChannelConfig {
	for i := range c.Channels {
		if strings.EqualFold(c.Channels[i].Name, name) {
			return &c.Channels[i]
		}
	}
	c.Channels = append(c.Channels, DefaultChannel(name))
	return &c.Channels[len(c.Channels)-1]
}

// fillChannelDefaults adds missing channels and treats a zero divisor or
// scale as unset.
func (c *Config) fillChannelDefaults() {
	for _, name := range []string{ChannelTemperature, ChannelHumidity} {
		c.channelRef(name)
	}
	for i := range c.Channels {
		c.Channels[i].Name = strings.ToLower(c.Channels[i].Name)
		if c.Channels[i].Divisor == 0 {
			c.Channels[i].Divisor = 1000
		}
		if c.Channels[i].CalibrationScale == 0 {
			c.Channels[i].CalibrationScale = 1.0
		}
	}
}

// BindFlags registers the command line flags read by Load.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (json, yaml or toml)")
	fs.String("sensor-type", "", "sensor type: sysfs|i2c|simulation")
	fs.String("temperature-path", "", "sysfs temperature attribute")
	fs.String("humidity-path", "", "sysfs humidity attribute")
	fs.String("i2c-bus", "", "I2C bus (e.g., '0' -> /dev/i2c-0)")
	fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	fs.String("intervals", "", "Per-channel intervals in seconds e.g. temperature=1,humidity=5")
	fs.String("calibration", "", "Per-channel calibration scale e.g. temperature=1.0")
	fs.String("calibration-offset", "", "Per-channel calibration offset e.g. humidity=-0.5")
	fs.StringP("log-file", "f", "", "Log file to enable logging at start")
	fs.String("outputs", "", "Comma-separated outputs (console,mqtt,kafka)")
	fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.String("mqtt-user", "", "MQTT username")
	fs.String("mqtt-pass", "", "MQTT password")
	fs.String("mqtt-client-id", "", "MQTT client id")
	fs.String("mqtt-topic", "", "MQTT state topic, %s is replaced by the channel")
	fs.String("kafka-brokers", "", "Comma-separated Kafka brokers")
	fs.String("kafka-topic", "", "Kafka topic")
	fs.String("http-addr", "", "Listen address of the control API (disabled when empty)")
	fs.BoolP("debug", "d", false, "Enable debug logging")
}

// Load reads the optional config file and HTU21D_* environment variables
// through v, then applies the flags in fs that were set explicitly.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("sensor_type", cfg.SensorType)
	v.SetDefault("sysfs.temperature_path", cfg.Sysfs.TemperaturePath)
	v.SetDefault("sysfs.humidity_path", cfg.Sysfs.HumidityPath)
	v.SetDefault("i2c.bus", cfg.I2C.Bus)
	v.SetDefault("i2c.address", cfg.I2C.Address)
	v.SetDefault("log_file", "")
	v.SetDefault("http_addr", "")
	v.SetDefault("debug", false)

	for key, flag := range map[string]string{
		"sensor_type":            "sensor-type",
		"sysfs.temperature_path": "temperature-path",
		"sysfs.humidity_path":    "humidity-path",
		"i2c.bus":                "i2c-bus",
		"log_file":               "log-file",
		"http_addr":              "http-addr",
		"debug":                  "debug",
	} {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return cfg, fmt.Errorf("bind %s: %w", flag, err)
			}
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if v.IsSet("channels") {
		cfg.Channels = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillChannelDefaults()

	if err := applyFlags(&cfg, fs); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	get := func(name string) string {
		if !fs.Changed(name) {
			return ""
		}
		s, _ := fs.GetString(name)
		return s
	}

	if s := get("i2c-address"); s != "" {
		v, err := parseIntOrHex(s)
		if err != nil {
			return fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if s := get("intervals"); s != "" {
		m, err := parseKeyIntMap(s)
		if err != nil {
			return fmt.Errorf("intervals: %w", err)
		}
		for name, v := range m {
			cfg.channelRef(name).Interval = v
		}
	}
	if s := get("calibration"); s != "" {
		m, err := parseKeyFloatMap(s)
		if err != nil {
			return fmt.Errorf("calibration: %w", err)
		}
		for name, v := range m {
			cfg.channelRef(name).CalibrationScale = v
		}
	}
	if s := get("calibration-offset"); s != "" {
		m, err := parseKeyFloatMap(s)
		if err != nil {
			return fmt.Errorf("calibration-offset: %w", err)
		}
		for name, v := range m {
			cfg.channelRef(name).CalibrationOffset = v
		}
	}
	if s := get("outputs"); s != "" {
		parts := parseCSV(s)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}

	// map mqtt flags into every mqtt output (create one if missing)
	mqttFlags := map[string]string{}
	for _, name := range []string{"mqtt-server", "mqtt-user", "mqtt-pass", "mqtt-client-id", "mqtt-topic"} {
		if s := get(name); s != "" {
			mqttFlags[name] = s
		}
	}
	if len(mqttFlags) > 0 {
		out := cfg.output(OutputMQTT)
		if out.MQTT == nil {
			out.MQTT = &MQTTConfig{}
		}
		for name, s := range mqttFlags {
			switch name {
			case "mqtt-server":
				out.MQTT.Server = s
			case "mqtt-user":
				out.MQTT.Username = s
			case "mqtt-pass":
				out.MQTT.Password = s
			case "mqtt-client-id":
				out.MQTT.ClientID = s
			case "mqtt-topic":
				out.MQTT.StateTopic = s
			}
		}
	}

	brokers, topic := get("kafka-brokers"), get("kafka-topic")
	if brokers != "" || topic != "" {
		out := cfg.output(OutputKafka)
		if out.Kafka == nil {
			out.Kafka = &KafkaConfig{}
		}
		if brokers != "" {
			out.Kafka.Brokers = parseCSV(brokers)
		}
		if topic != "" {
			out.Kafka.Topic = topic
		}
	}
	return nil
}

// output returns the first output of the given type, appending one if none
// exists.
func (c *Config) output(typ string) *OutputConfig {
	for i := range c.Outputs {
		if strings.EqualFold(c.Outputs[i].Type, typ) {
			return &c.Outputs[i]
		}
	}
	c.Outputs = append(c.Outputs, OutputConfig{Type: typ})
	return &c.Outputs[len(c.Outputs)-1]
}

// Validate rejects configurations the monitor cannot run with.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorSysfs, SensorI2C, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if c.SensorType == SensorI2C && (c.I2C.Address <= 0 || c.I2C.Address > 0x7F) {
		return fmt.Errorf("i2c address 0x%X out of range", c.I2C.Address)
	}
	for _, ch := range c.Channels {
		switch strings.ToLower(ch.Name) {
		case ChannelTemperature, ChannelHumidity:
		default:
			return fmt.Errorf("unknown channel %q", ch.Name)
		}
		if ch.Interval < 0 {
			return fmt.Errorf("%s: interval must be >= 0", ch.Name)
		}
		if ch.Divisor == 0 {
			return fmt.Errorf("%s: divisor must not be 0", ch.Name)
		}
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole, OutputMQTT:
		case OutputKafka:
			if o.Kafka == nil || len(o.Kafka.Brokers) == 0 {
				return errors.New("kafka output requires at least one broker")
			}
		default:
			return fmt.Errorf("unknown output %q", o.Type)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKeyValues(s string) ([][2]string, error) {
	parts := parseCSV(s)
	out := make([][2]string, 0, len(parts))
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s', want name=value", p)
		}
		out = append(out, [2]string{strings.ToLower(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])})
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[string]int, error) {
	kvs, err := parseKeyValues(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(kvs))
	for _, kv := range kvs {
		v, err := strconv.Atoi(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid value for '%s': %w", kv[0], err)
		}
		out[kv[0]] = v
	}
	return out, nil
}

func parseKeyFloatMap(s string) (map[string]float64, error) {
	kvs, err := parseKeyValues(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(kvs))
	for _, kv := range kvs {
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for '%s': %w", kv[0], err)
		}
		out[kv[0]] = v
	}
	return out, nil
}
