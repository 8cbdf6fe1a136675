package monitor

import "github.com/ericogr/htu21d-logger/pkg/sensor"

type ChannelStatus struct {
	Channel  sensor.Channel `json:"channel"`
	Interval int            `json:"interval"`
	State    string         `json:"state"`
	Elapsed  int            `json:"elapsed"`
	Cycles   int            `json:"cycles"`
	Error    string         `json:"error,omitempty"`
}

type Status struct {
	Logging  bool            `json:"logging"`
	Path     string          `json:"path,omitempty"`
	Session  string          `json:"session,omitempty"`
	Closed   bool            `json:"closed"`
	Channels []ChannelStatus `json:"channels"`
}

// Status snapshots the session. A worker stopped by a read failure shows up
// as "terminated" with its error while logging is still enabled.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Logging: m.file != nil, Path: m.path, Closed: m.closed}
	if st.Logging {
		st.Session = m.session
	}
	for _, ch := range sensor.Channels {
		cs := ChannelStatus{Channel: ch, Interval: m.intervals[ch].Get(), State: "idle"}
		if w, ok := m.workers[ch]; ok {
			cs.State = w.State().String()
			cs.Elapsed = w.Elapsed()
			cs.Cycles = w.Cycles()
			if err := w.Err(); err != nil {
				cs.Error = err.Error()
			}
		}
		st.Channels = append(st.Channels, cs)
	}
	return st
}

// Alive reports whether the worker of ch is polling.
func (m *Monitor) Alive(ch sensor.Channel) bool {
	m.mu.Lock()
	w, ok := m.workers[ch]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-w.Done():
		return false
	default:
		return true
	}
}
