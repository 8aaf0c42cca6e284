package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultCycleTimeout   = 5 * time.Minute
)

type Server struct {
	mux          *chi.Mux
	timeout      time.Duration
	cycleTimeout time.Duration
}

// New builds the router with the shared middleware stack. Ordinary routes are
// cut off after requestTimeout; routes that run a poll cycle get cycleTimeout.
// Values <= 0 use 15s and 5m.
func New(requestTimeout, cycleTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	if cycleTimeout <= 0 {
		cycleTimeout = defaultCycleTimeout
	}
	m := chi.NewRouter()

	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(chimw.Compress(5, "application/json", "application/problem+json"))
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m, timeout: requestTimeout, cycleTimeout: cycleTimeout}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches an extra handler such as /metrics.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.With(Timeout(s.timeout)).Handle(path, h)
}
