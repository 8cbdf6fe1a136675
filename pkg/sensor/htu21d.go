package sensor

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	DefaultHTU21DAddress = 0x40

	cmdTempHold     = 0xE3
	cmdHumidityHold = 0xE5
	cmdSoftReset    = 0xFE

	softResetDelay = 15 * time.Millisecond
)

// HTU21D talks to the sensor directly over I2C. Both channel sources share
// the device and the bus is closed when the last one is closed.
type HTU21D struct {
	mu   sync.Mutex
	dev  *i2c.Dev
	bus  i2c.BusCloser
	refs int
}

type htu21dSource struct {
	d    *HTU21D
	cmd  byte
	once sync.Once
}

// OpenHTU21D initialises periph, opens the bus and returns one source per
// channel. Values are reported in milli-units like the IIO driver does.
func OpenHTU21D(busName string, addr uint16) (Sources, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return newHTU21D(bus, addr)
}

// newHTU21D soft-resets the sensor on an open bus. The bus is closed on
// failure.
func newHTU21D(bus i2c.BusCloser, addr uint16) (Sources, error) {
	d := &HTU21D{dev: &i2c.Dev{Addr: addr, Bus: bus}, bus: bus, refs: 2}
	if err := d.dev.Tx([]byte{cmdSoftReset}, nil); err != nil {
		bus.Close()
		return nil, fmt.Errorf("soft reset: %w", err)
	}
	time.Sleep(softResetDelay)
	return Sources{
		Temperature: &htu21dSource{d: d, cmd: cmdTempHold},
		Humidity:    &htu21dSource{d: d, cmd: cmdHumidityHold},
	}, nil
}

func (s *htu21dSource) ReadValue() (string, error) {
	raw, err := s.d.measure(s.cmd)
	if err != nil {
		return "", err
	}
	var v float64
	if s.cmd == cmdTempHold {
		v = rawToCelsius(raw)
	} else {
		v = rawToRH(raw)
	}
	return strconv.Itoa(int(math.Round(v * 1000))), nil
}

// Reset is a no-op: every measurement is a fresh conversion.
func (s *htu21dSource) Reset() error { return nil }

func (s *htu21dSource) Close() error {
	var err error
	s.once.Do(func() { err = s.d.release() })
	return err
}

func (d *HTU21D) measure(cmd byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return 0, fmt.Errorf("htu21d: bus closed")
	}
	buf := make([]byte, 3)
	if err := d.dev.Tx([]byte{cmd}, buf); err != nil {
		return 0, fmt.Errorf("htu21d measure 0x%02X: %w", cmd, err)
	}
	if crc := crc8(buf[:2]); crc != buf[2] {
		return 0, fmt.Errorf("htu21d crc mismatch: got %02X want %02X", buf[2], crc)
	}
	// the two low bits carry status, not data
	return (uint16(buf[0])<<8 | uint16(buf[1])) &^ 0x3, nil
}

func (d *HTU21D) release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs--
	if d.refs > 0 || d.bus == nil {
		return nil
	}
	err := d.bus.Close()
	d.bus = nil
	return err
}

func rawToCelsius(raw uint16) float64 {
	return -46.85 + 175.72*float64(raw)/65536.0
}

func rawToRH(raw uint16) float64 {
	return -6 + 125*float64(raw)/65536.0
}

// crc8 is the HTU21D checksum: polynomial x^8 + x^5 + x^4 + 1, init 0.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
