package console

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	readings := []sensor.Reading{{Channel: sensor.Temperature, Raw: "23456", Value: 23.456, Timestamp: ts}}
	out := captureStdout(func() { _ = NewConsole().Publish(readings) })
	want := "2025-09-19T14:41:54Z channel=temperature raw=23456 value=23.456000 ("
	if !strings.HasPrefix(out, want) {
		t.Fatalf("console output mismatch:\n got: %q\nwant prefix: %q", out, want)
	}
	if !strings.Contains(out, "°C") || !strings.HasSuffix(out, ")\n") {
		t.Fatalf("temperature should carry its physical unit: %q", out)
	}
}

func TestConsoleWriterHumidity(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	c := NewWriter(&buf)
	err := c.Publish([]sensor.Reading{
		{Channel: sensor.Humidity, Raw: "45500", Value: 45.5, Timestamp: ts},
		{Channel: sensor.Humidity, Raw: "46000", Value: 46, Timestamp: ts},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "channel=humidity raw=45500 value=45.500000") || !strings.Contains(lines[0], "%rH") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}
