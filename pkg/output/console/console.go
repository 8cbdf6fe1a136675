package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ericogr/htu21d-logger/pkg/output"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

type ConsoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

// NewWriter is NewConsole printing to w.
func NewWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range readings {
		if _, err := fmt.Fprintf(c.w, "%s channel=%s raw=%s value=%.6f (%s)\n",
			r.Timestamp.Format(time.RFC3339), r.Channel, r.Raw, r.Value, r.Physic()); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
