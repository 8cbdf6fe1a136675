package sensor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	DefaultTemperaturePath = "/sys/bus/i2c/devices/0-0040/iio:device0/in_temp_input"
	DefaultHumidityPath    = "/sys/bus/i2c/devices/0-0040/iio:device0/in_humidityrelative_input"

	maxValueLen = 32
)

// SysfsSource reads a sysfs attribute file. Every read starts at offset 0,
// so a concurrent Reset from another caller never truncates a value.
type SysfsSource struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func OpenSysfs(path string) (*SysfsSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &SysfsSource{path: path, f: f}, nil
}

// OpenSysfsPair opens both channel attributes. Nothing stays open when
// either one fails.
func OpenSysfsPair(temperaturePath, humidityPath string) (Sources, error) {
	temp, err := OpenSysfs(temperaturePath)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	hum, err := OpenSysfs(humidityPath)
	if err != nil {
		temp.Close()
		return nil, fmt.Errorf("humidity: %w", err)
	}
	return Sources{Temperature: temp, Humidity: hum}, nil
}

func (s *SysfsSource) ReadValue() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return "", os.ErrClosed
	}
	buf := make([]byte, maxValueLen)
	n, err := s.f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", s.path, err)
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func (s *SysfsSource) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err := s.f.Seek(0, io.SeekStart)
	return err
}

func (s *SysfsSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
