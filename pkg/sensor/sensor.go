package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Channel identifies one of the two measurement channels of the sensor.
type Channel int

const (
	Temperature Channel = iota
	Humidity
)

// Channels lists every channel in menu order.
var Channels = []Channel{Temperature, Humidity}

var ErrUnknownChannel = errors.New("unknown channel")

func (c Channel) String() string {
	switch c {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Label is the name written into log lines.
func (c Channel) Label() string {
	switch c {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	}
	return c.String()
}

// Unit is the unit suffix written into log lines.
func (c Channel) Unit() string {
	switch c {
	case Temperature:
		return "celsius"
	case Humidity:
		return "RH"
	}
	return ""
}

func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	v, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChannel accepts a channel name ("temperature", "humidity") or its
// short form ("temp", "hum").
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature", "temp":
		return Temperature, nil
	case "humidity", "hum":
		return Humidity, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Source is a re-readable byte source returning one ASCII decimal value per
// poll. Implementations must be safe for concurrent use, since on-demand
// reads share the source with the channel's worker.
type Source interface {
	ReadValue() (string, error)
	// Reset rewinds the source so the next ReadValue returns a fresh sample.
	Reset() error
	Close() error
}

// Sources holds one Source per channel.
type Sources map[Channel]Source

// Close closes every source and returns the joined errors.
func (s Sources) Close() error {
	var errs []error
	for _, ch := range Channels {
		if src, ok := s[ch]; ok && src != nil {
			if err := src.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
			}
		}
	}
	return errors.Join(errs...)
}

type Reading struct {
	Channel   Channel   `json:"channel"`
	Raw       string    `json:"raw"`
	Value     float64   `json:"value"`
	Elapsed   int       `json:"elapsed"`
	Timestamp time.Time `json:"timestamp"`
}

// LogLine renders the reading as "[<elapsed>] <Label>: <value> <unit>\n".
func (r Reading) LogLine() string {
	return fmt.Sprintf("[%d] %s: %f %s\n", r.Elapsed, r.Channel.Label(), r.Value, r.Channel.Unit())
}

// Physic renders the value with periph's physical units.
func (r Reading) Physic() string {
	switch r.Channel {
	case Temperature:
		return (physic.ZeroCelsius + physic.Temperature(r.Value*float64(physic.Celsius))).String()
	case Humidity:
		return physic.RelativeHumidity(r.Value * float64(physic.PercentRH)).String()
	}
	return fmt.Sprintf("%f", r.Value)
}
