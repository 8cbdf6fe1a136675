package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/htu21d-logger/pkg/monitor"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

func newTestRouter(t *testing.T) (http.Handler, *monitor.Monitor) {
	t.Helper()
	m, err := monitor.New(sensor.Sources{
		sensor.Temperature: sensor.NewFakeSource("24500"),
		sensor.Humidity:    sensor.NewFakeSource("51250"),
	}, monitor.Options{Unit: time.Millisecond, Intervals: map[sensor.Channel]int{sensor.Temperature: 50, sensor.Humidity: 50}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Shutdown() })
	return NewRouter(m), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, "GET", "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestReading(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, "GET", "/channels/humidity/reading", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var rd sensor.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &rd); err != nil {
		t.Fatal(err)
	}
	if rd.Channel != sensor.Humidity || rd.Value != 51.25 || rd.Raw != "51250" {
		t.Fatalf("reading %+v", rd)
	}
	if rec := do(t, h, "GET", "/channels/pressure/reading", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown channel: %d", rec.Code)
	}
}

func TestSetInterval(t *testing.T) {
	h, m := newTestRouter(t)
	rec := do(t, h, "PUT", "/channels/temp/interval", `{"seconds": 9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if m.Interval(sensor.Temperature) != 9 {
		t.Fatalf("interval not applied")
	}
	for _, body := range []string{`{"seconds": -1}`, `{}`, `nope`} {
		if rec := do(t, h, "PUT", "/channels/temperature/interval", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status %d", body, rec.Code)
		}
	}
	if m.Interval(sensor.Temperature) != 9 {
		t.Fatalf("rejected requests must not change the interval")
	}
	rec = do(t, h, "GET", "/channels/temperature/interval", "")
	if !strings.Contains(rec.Body.String(), `"seconds":9`) {
		t.Fatalf("get interval: %s", rec.Body.String())
	}
}

func TestLoggingToggle(t *testing.T) {
	h, m := newTestRouter(t)
	path := filepath.Join(t.TempDir(), "api.log")

	rec := do(t, h, "DELETE", "/logging", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "It's already disabled") {
		t.Fatalf("disable while disabled: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, "POST", "/logging", `{"path": ""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty path: %d", rec.Code)
	}

	rec = do(t, h, "POST", "/logging", `{"path": "`+path+`"}`)
	var resp loggingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Changed || !resp.Logging || resp.Path != path || !m.Logging() {
		t.Fatalf("enable: %+v", resp)
	}
	rec = do(t, h, "POST", "/logging", `{"path": "`+path+`"}`)
	if !strings.Contains(rec.Body.String(), "It's already enabled") {
		t.Fatalf("enable twice: %s", rec.Body.String())
	}

	var st monitor.Status
	if err := json.Unmarshal(do(t, h, "GET", "/status", "").Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Logging || len(st.Channels) != 2 || st.Channels[1].Channel != sensor.Humidity {
		t.Fatalf("status %+v", st)
	}

	rec = do(t, h, "DELETE", "/logging", "")
	if rec.Code != http.StatusOK || m.Logging() {
		t.Fatalf("disable: %d %s", rec.Code, rec.Body.String())
	}
}

func TestClosedMonitor(t *testing.T) {
	h, m := newTestRouter(t)
	m.Shutdown()
	if rec := do(t, h, "GET", "/channels/temperature/reading", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}
