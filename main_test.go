package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/htu21d-logger/pkg/config"
	"github.com/ericogr/htu21d-logger/pkg/monitor"
	"github.com/ericogr/htu21d-logger/pkg/output"
	"github.com/ericogr/htu21d-logger/pkg/output/console"
	"github.com/ericogr/htu21d-logger/pkg/output/kafka"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{
		{Type: "console"},
		{Type: "Kafka", Kafka: &config.KafkaConfig{Brokers: []string{"localhost:9092"}}},
	}}
	outs, err := initOutputs(cfg)
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	defer outs.Close()
	if len(outs) != 2 {
		t.Fatalf("outputs len: %d", len(outs))
	}
	if _, ok := outs[0].(*console.ConsoleOutput); !ok {
		t.Fatalf("first output is %T", outs[0])
	}
	if _, ok := outs[1].(*kafka.KafkaOutput); !ok {
		t.Fatalf("second output is %T", outs[1])
	}
}

func TestInitOutputsErrors(t *testing.T) {
	for _, oc := range []config.OutputConfig{{Type: "kafka"}, {Type: "carrier-pigeon"}} {
		cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, oc}}
		if _, err := initOutputs(cfg); err == nil {
			t.Fatalf("expected error for %+v", oc)
		}
	}
	outs, err := initOutputs(config.Config{})
	if err != nil || len(outs) != 0 {
		t.Fatalf("no outputs: %v %v", outs, err)
	}
}

func newMenuMonitor(t *testing.T, temp, hum *sensor.FakeSource) *monitor.Monitor {
	t.Helper()
	m, err := monitor.New(sensor.Sources{sensor.Temperature: temp, sensor.Humidity: hum}, monitor.Options{
		Unit:      time.Millisecond,
		Intervals: map[sensor.Channel]int{sensor.Temperature: 20, sensor.Humidity: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func runMenu(t *testing.T, m *monitor.Monitor, logFile, input string) string {
	t.Helper()
	var out bytes.Buffer
	newMenu(m, strings.NewReader(input), &out).run(logFile)
	return out.String()
}

func TestMenuReadData(t *testing.T) {
	m := newMenuMonitor(t, sensor.NewFakeSource("250"), sensor.NewFakeSource("255"))
	path := filepath.Join(t.TempDir(), "menu.log")
	out := runMenu(t, m, path, "1 1 1 2 4")
	if !strings.Contains(out, "\nTemperature: 0.250000 celsius\n") {
		t.Fatalf("missing temperature reading:\n%s", out)
	}
	if !strings.Contains(out, "\nHumidity: 0.255000 RH\n") {
		t.Fatalf("missing humidity reading:\n%s", out)
	}
	if !m.Logging() {
		t.Fatalf("the initial log file should enable logging")
	}
}

func TestMenuPromptsForLogFile(t *testing.T) {
	m := newMenuMonitor(t, sensor.NewFakeSource("1000"), sensor.NewFakeSource("2000"))
	path := filepath.Join(t.TempDir(), "prompted.log")
	out := runMenu(t, m, "", path+" 4")
	if !strings.Contains(out, "Enter file name") {
		t.Fatalf("no file name prompt:\n%s", out)
	}
	if st := m.Status(); !st.Logging || st.Path != path {
		t.Fatalf("status %+v", st)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestMenuLoggingNotices(t *testing.T) {
	m := newMenuMonitor(t, sensor.NewFakeSource("1000"), sensor.NewFakeSource("2000"))
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	input := strings.Join([]string{
		"3 1",           // already enabled
		"3 2",           // disable
		"3 2",           // already disabled
		"3 1 " + second, // enable again
		"4",
	}, " ")
	out := runMenu(t, m, first, input)
	if strings.Count(out, "It's already enabled") != 1 || strings.Count(out, "It's already disabled") != 1 {
		t.Fatalf("notices:\n%s", out)
	}
	if st := m.Status(); !st.Logging || st.Path != second {
		t.Fatalf("status %+v", st)
	}
}

func TestMenuChangeInterval(t *testing.T) {
	m := newMenuMonitor(t, sensor.NewFakeSource("1000"), sensor.NewFakeSource("2000"))
	path := filepath.Join(t.TempDir(), "iv.log")
	out := runMenu(t, m, path, "2 2 7 2 1 -3 2 1 x 2 9 4")
	if m.Interval(sensor.Humidity) != 7 {
		t.Fatalf("humidity interval %d", m.Interval(sensor.Humidity))
	}
	if m.Interval(sensor.Temperature) != 20 {
		t.Fatalf("temperature interval changed to %d", m.Interval(sensor.Temperature))
	}
	if strings.Count(out, "Invalid value") != 2 {
		t.Fatalf("expected two rejected values:\n%s", out)
	}
	if !strings.Contains(out, "Invalid option") {
		t.Fatalf("sub-choice 9 should be rejected:\n%s", out)
	}
}

func TestMenuMalformedInputStops(t *testing.T) {
	m := newMenuMonitor(t, sensor.NewFakeSource("1000"), sensor.NewFakeSource("2000"))
	path := filepath.Join(t.TempDir(), "bad.log")
	out := runMenu(t, m, path, "7 abc 1 1")
	if !strings.Contains(out, "\nInvalid option\n") {
		t.Fatalf("choice 7 should be rejected:\n%s", out)
	}
	if strings.Contains(out, "Temperature:") {
		t.Fatalf("menu should stop at non-numeric input:\n%s", out)
	}
	if out := runMenu(t, m, path, ""); !strings.Contains(out, "Enter your choice") {
		t.Fatalf("EOF run:\n%s", out)
	}
}

func TestMenuReadFailure(t *testing.T) {
	temp := sensor.NewFakeSource("1000")
	temp.FailAfter(0, os.ErrClosed)
	m := newMenuMonitor(t, temp, sensor.NewFakeSource("2000"))
	out := runMenu(t, m, filepath.Join(t.TempDir(), "f.log"), "1 1 1 2 4")
	if !strings.Contains(out, "Failed to read temperature data") {
		t.Fatalf("missing failure notice:\n%s", out)
	}
	if !strings.Contains(out, "Humidity: 2.000000 RH") {
		t.Fatalf("humidity should still be readable:\n%s", out)
	}
}

type closeTracker struct{ closed bool }

func (c *closeTracker) Publish([]sensor.Reading) error { return nil }
func (c *closeTracker) Close() error                   { c.closed = true; return nil }

func TestNewMonitorReleasesOnError(t *testing.T) {
	temp := sensor.NewFakeSource("1000")
	out := &closeTracker{}
	if _, err := newMonitor(config.DefaultConfig(), sensor.Sources{sensor.Temperature: temp}, output.Multi{out}); err == nil {
		t.Fatalf("expected error without a humidity source")
	}
	if !temp.Closed() || !out.closed {
		t.Fatalf("sources closed=%v outputs closed=%v", temp.Closed(), out.closed)
	}
}

func TestMonitorOwnsOutputs(t *testing.T) {
	out := &closeTracker{}
	m, err := newMonitor(config.DefaultConfig(), sensor.Sources{
		sensor.Temperature: sensor.NewFakeSource("1000"),
		sensor.Humidity:    sensor.NewFakeSource("2000"),
	}, output.Multi{out})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !out.closed {
		t.Fatalf("Shutdown should close the outputs")
	}
}
