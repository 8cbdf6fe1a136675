package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"
)

type Server struct {
	srv    *http.Server
	access *io.PipeWriter
}

// NewServer wraps the router with request logging written to logger at
// info level. The access log writer lives until Shutdown.
func NewServer(addr string, c Controller, logger *log.Logger) *Server {
	access := logger.WriterLevel(log.InfoLevel)
	return &Server{
		access: access,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handlers.LoggingHandler(access, NewRouter(c)),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Infof("control API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("control API stopped")
		}
	}()
}

// Shutdown stops the server and closes the access log writer.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if cerr := s.access.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
