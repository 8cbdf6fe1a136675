package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ericogr/htu21d-logger/pkg/config"
	"github.com/ericogr/htu21d-logger/pkg/output"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

const (
	// defaults
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientIDPfx = "htu21d-"
	perChannelTopicFmt = "htu21d/%s"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
	valueTemplate          = "{{ value_json.value }}"

	publishTimeout = 2 * time.Second
)

var errPublishTimeout = errors.New("mqtt publish timed out")

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
}

// NewMQTT connects to the broker and, when a discovery topic is set,
// publishes retained Home Assistant discovery entries for both channels.
// A "%s" in the state or discovery topic is replaced by the channel name.
func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientIDPfx + uuid.NewString()
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic}
	if cfg.DiscoveryTopic != "" {
		for topic, payload := range discoveryPayloads(cfg) {
			if err := publishJSON(client, topic, true, payload); err != nil {
				log.Printf("mqtt discovery publish error: %v", err)
			}
		}
	}
	return m, nil
}

func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		b, err := json.Marshal(statePayload(r))
		if err != nil {
			return err
		}
		token := m.client.Publish(formatStateTopic(m.stateTopic, r.Channel), 0, false, b)
		if err := waitToken(token); err != nil {
			return err
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func statePayload(r sensor.Reading) map[string]interface{} {
	return map[string]interface{}{
		"value":     r.Value,
		"raw":       r.Raw,
		"unit":      r.Channel.Unit(),
		"elapsed":   r.Elapsed,
		"timestamp": r.Timestamp,
	}
}

// helper: format a state topic for a channel using an optional formatter
func formatStateTopic(base string, ch sensor.Channel) string {
	if base == "" {
		return fmt.Sprintf(perChannelTopicFmt, ch)
	}
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, ch)
	}
	return base + "/" + ch.String()
}

// discoveryPayloads maps each discovery topic to its payload. Without a
// formatter both channels would collide on one topic, so the channel name
// is appended as a path segment.
func discoveryPayloads(cfg config.MQTTConfig) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(sensor.Channels))
	for _, ch := range sensor.Channels {
		out[formatStateTopic(cfg.DiscoveryTopic, ch)] = baseDiscoveryPayload(ch, discoveryName(cfg, ch), formatStateTopic(cfg.StateTopic, ch), discoveryUniqueID(cfg, ch))
	}
	return out
}

func discoveryName(cfg config.MQTTConfig, ch sensor.Channel) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = "HTU21D"
	}
	return fmt.Sprintf("%s %s", name, ch.Label())
}

func discoveryUniqueID(cfg config.MQTTConfig, ch sensor.Channel) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, ch)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(ch sensor.Channel, name, stateTopic, uniqueID string) map[string]interface{} {
	unit, class := "°C", "temperature"
	if ch == sensor.Humidity {
		unit, class = "%", "humidity"
	}
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unit,
		keyDeviceClass:         class,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplate,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return waitToken(client.Publish(topic, 0, retained, b))
}

func waitToken(token mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}
