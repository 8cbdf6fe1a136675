// Package api exposes the monitor commands over HTTP, mirroring the
// interactive menu.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ericogr/htu21d-logger/pkg/monitor"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
	"github.com/ericogr/htu21d-logger/pkg/worker"
)

// Controller is the command surface the API drives; *monitor.Monitor
// implements it.
type Controller interface {
	StartLogging(path string) (bool, error)
	StopLogging() (bool, error)
	ReadNow(ch sensor.Channel) (sensor.Reading, error)
	SetInterval(ch sensor.Channel, seconds int) error
	Interval(ch sensor.Channel) int
	Status() monitor.Status
}

type handler struct {
	c Controller
}

func NewRouter(c Controller) *mux.Router {
	h := &handler{c: c}
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/status", h.status).Methods("GET")
	r.HandleFunc("/channels/{channel}/reading", h.reading).Methods("GET")
	r.HandleFunc("/channels/{channel}/interval", h.getInterval).Methods("GET")
	r.HandleFunc("/channels/{channel}/interval", h.setInterval).Methods("PUT")
	r.HandleFunc("/logging", h.startLogging).Methods("POST")
	r.HandleFunc("/logging", h.stopLogging).Methods("DELETE")

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type intervalBody struct {
	Channel sensor.Channel `json:"channel"`
	Seconds *int           `json:"seconds"`
}

type loggingBody struct {
	Path string `json:"path"`
}

type loggingResponse struct {
	Logging bool   `json:"logging"`
	Changed bool   `json:"changed"`
	Notice  string `json:"notice,omitempty"`
	Path    string `json:"path,omitempty"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.c.Status())
}

func (h *handler) reading(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelVar(w, r)
	if !ok {
		return
	}
	rd, err := h.c.ReadNow(ch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

func (h *handler) getInterval(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelVar(w, r)
	if !ok {
		return
	}
	secs := h.c.Interval(ch)
	writeJSON(w, http.StatusOK, intervalBody{Channel: ch, Seconds: &secs})
}

func (h *handler) setInterval(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelVar(w, r)
	if !ok {
		return
	}
	var body intervalBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Seconds == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"seconds\": <int>}"})
		return
	}
	if err := h.c.SetInterval(ch, *body.Seconds); err != nil {
		writeError(w, err)
		return
	}
	secs := h.c.Interval(ch)
	writeJSON(w, http.StatusOK, intervalBody{Channel: ch, Seconds: &secs})
}

func (h *handler) startLogging(w http.ResponseWriter, r *http.Request) {
	var body loggingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"path\": <string>}"})
		return
	}
	changed, err := h.c.StartLogging(body.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := loggingResponse{Logging: true, Changed: changed, Path: h.c.Status().Path}
	if !changed {
		resp.Notice = "It's already enabled"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stopLogging(w http.ResponseWriter, _ *http.Request) {
	changed, err := h.c.StopLogging()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := loggingResponse{Changed: changed}
	if !changed {
		resp.Notice = "It's already disabled"
	}
	writeJSON(w, http.StatusOK, resp)
}

func channelVar(w http.ResponseWriter, r *http.Request) (sensor.Channel, bool) {
	ch, err := sensor.ParseChannel(mux.Vars(r)["channel"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return 0, false
	}
	return ch, true
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, worker.ErrInvalidInterval), errors.Is(err, monitor.ErrEmptyPath):
		code = http.StatusBadRequest
	case errors.Is(err, sensor.ErrUnknownChannel):
		code = http.StatusNotFound
	case errors.Is(err, monitor.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("write response")
	}
}
