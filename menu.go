package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ericogr/htu21d-logger/pkg/monitor"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
	"github.com/ericogr/htu21d-logger/pkg/worker"
)

const (
	choiceRead = iota + 1
	choiceInterval
	choiceLogging
	choiceExit
)

// menu is the numbered interactive controller. Input is read one
// whitespace separated token at a time.
type menu struct {
	m   *monitor.Monitor
	in  *bufio.Scanner
	out io.Writer
}

func newMenu(m *monitor.Monitor, in io.Reader, out io.Writer) *menu {
	sc := bufio.NewScanner(in)
	sc.Split(bufio.ScanWords)
	return &menu{m: m, in: sc, out: out}
}

func (mn *menu) printf(format string, args ...interface{}) {
	fmt.Fprintf(mn.out, format, args...)
}

func (mn *menu) token() (string, bool) {
	if !mn.in.Scan() {
		return "", false
	}
	return mn.in.Text(), true
}

// number reads an integer token. ok is false on EOF or non-numeric input.
func (mn *menu) number() (int, bool) {
	tok, ok := mn.token()
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

// run drives the menu until exit, end of input or malformed top-level
// input. When logFile is empty the user is asked for one first.
func (mn *menu) run(logFile string) {
	mn.printf("\nApplication for the read temperature and humidity\n")
	if logFile == "" {
		mn.printf("Enter file name where the application data is saved\n")
		name, ok := mn.token()
		if !ok {
			return
		}
		logFile = name
	}
	mn.enable(logFile)

	for {
		mn.printf("\nEnter your choice\n")
		mn.printf("1 -> Read data\n")
		mn.printf("2 -> Change intervals for readings\n")
		mn.printf("3 -> Enable/disable option to logging data on file\n")
		mn.printf("4 -> Exit from application\n\n")
		choice, ok := mn.number()
		if !ok {
			mn.printf("Invalid option\n")
			return
		}
		switch choice {
		case choiceRead:
			mn.read()
		case choiceInterval:
			mn.interval()
		case choiceLogging:
			mn.logging()
		case choiceExit:
			return
		default:
			mn.printf("\nInvalid option\n")
		}
	}
}

// channel asks for 1 (temperature) or 2 (humidity).
func (mn *menu) channel(first, second string) (sensor.Channel, bool) {
	mn.printf("\n1 -> %s\n", first)
	mn.printf("2 -> %s\n", second)
	n, ok := mn.number()
	if !ok || n < 1 || n > len(sensor.Channels) {
		mn.printf("\nInvalid option\n")
		return 0, false
	}
	return sensor.Channels[n-1], true
}

func (mn *menu) read() {
	ch, ok := mn.channel("For temperature", "For humidity")
	if !ok {
		return
	}
	r, err := mn.m.ReadNow(ch)
	if err != nil {
		mn.printf("Failed to read %s data\n", ch)
		return
	}
	mn.printf("\n%s: %f %s\n", ch.Label(), r.Value, ch.Unit())
}

func (mn *menu) interval() {
	ch, ok := mn.channel("Change temperature interval", "Change humidity interval")
	if !ok {
		return
	}
	mn.printf("\nEnter new interval value\n")
	secs, ok := mn.number()
	if !ok {
		mn.printf("\nInvalid value\n")
		return
	}
	if err := mn.m.SetInterval(ch, secs); err != nil {
		if errors.Is(err, worker.ErrInvalidInterval) {
			mn.printf("\nInvalid value\n")
		} else {
			mn.printf("\n%v\n", err)
		}
		return
	}
	if !mn.m.Logging() {
		mn.printf("\nLogging is disabled, the new interval applies to the next session\n")
	}
}

func (mn *menu) logging() {
	mn.printf("\n1 -> Enable option for write data on file\n")
	mn.printf("2 -> Disable to write data on file\n")
	n, ok := mn.number()
	if !ok {
		mn.printf("\nInvalid option\n")
		return
	}
	switch n {
	case 1:
		if mn.m.Logging() {
			mn.printf("\nIt's already enabled\n")
			return
		}
		mn.printf("\nEnter file name\n")
		name, ok := mn.token()
		if !ok {
			mn.printf("Invalid name\n")
			return
		}
		mn.enable(name)
	case 2:
		changed, err := mn.m.StopLogging()
		switch {
		case err != nil:
			mn.printf("\n%v\n", err)
		case !changed:
			mn.printf("\nIt's already disabled\n")
		}
	default:
		mn.printf("\nInvalid option\n")
	}
}

func (mn *menu) enable(path string) {
	changed, err := mn.m.StartLogging(path)
	switch {
	case err != nil:
		mn.printf("Failed to open %s: %v\n", path, err)
	case !changed:
		mn.printf("\nIt's already enabled\n")
	}
}
