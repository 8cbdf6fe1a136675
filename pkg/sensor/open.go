package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/htu21d-logger/pkg/config"
)

// Open returns the channel sources selected by cfg.SensorType.
func Open(cfg config.Config) (Sources, error) {
	switch cfg.SensorType {
	case config.SensorSysfs, "":
		return OpenSysfsPair(cfg.Sysfs.TemperaturePath, cfg.Sysfs.HumidityPath)
	case config.SensorI2C:
		return OpenHTU21D(cfg.I2C.Bus, uint16(cfg.I2C.Address))
	case config.SensorSimulation:
		return NewSimulatedSources(time.Now().UnixNano()), nil
	}
	return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
}

// Scales extracts the per-channel conversion settings from the config.
func Scales(cfg config.Config) map[Channel]Scale {
	out := make(map[Channel]Scale, len(Channels))
	for _, ch := range Channels {
		c := cfg.Channel(ch.String())
		out[ch] = Scale{Divisor: c.Divisor, Factor: c.CalibrationScale, Offset: c.CalibrationOffset}
	}
	return out
}

// Intervals extracts the initial per-channel intervals from the config.
func Intervals(cfg config.Config) map[Channel]int {
	out := make(map[Channel]int, len(Channels))
	for _, ch := range Channels {
		out[ch] = cfg.Channel(ch.String()).Interval
	}
	return out
}
