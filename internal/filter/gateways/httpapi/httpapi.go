// Package httpapi exposes the engine to an interception host over HTTP:
// request decisions, profile status and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/services/engine"
	"github.com/haukened/simplefilter/internal/filter/services/sources"
)

const readHeaderTimeout = 5 * time.Second

// Engine is the part of the engine the API serves.
type Engine interface {
	Decide(ev domain.RequestEvent, phase engine.Phase) domain.Decision
	Profiles() []sources.Profile
}

// DecisionResponse is the body of GET /v1/decision.
type DecisionResponse struct {
	Action       string              `json:"action"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	Phase        string              `json:"phase"`
	Slot         int                 `json:"slot"`
	Rule         string              `json:"rule,omitempty"`
	HostResponse domain.HostResponse `json:"host_response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Options struct {
	Addr     string
	Engine   Engine
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   logpkg.Logger
}

type Server struct {
	addr     string
	engine   Engine
	gatherer prometheus.Gatherer
	logger   logpkg.Logger

	srv      *http.Server
	listener net.Listener
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	return &Server{
		addr:     opts.Addr,
		engine:   opts.Engine,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/decision", s.handleDecision)
	mux.HandleFunc("GET /v1/profiles", s.handleProfiles)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listen address and serves in the background until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "http_serve_failed")
		}
	}()
	s.logger.Info(map[string]any{"address": s.Address()}, "http_api_started")
	return nil
}

// Stop shuts the server down, waiting for active requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Address returns the bound address, or the configured one before Start.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleDecision evaluates ?url=&type=&phase=. phase is "request" (block
// lists), "headers" (redirect lists) or "both" (default), which runs the
// request phase first and the headers phase only when it passes.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing url"})
		return
	}
	typeTag := q.Get("type")
	if typeTag == "" {
		typeTag = domain.ResourceOther.String()
	}
	ev, err := domain.NewRequestEvent(rawURL, typeTag)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var phases []engine.Phase
	switch q.Get("phase") {
	case "", "both":
		phases = []engine.Phase{engine.PhaseRequest, engine.PhaseHeaders}
	case "request":
		phases = []engine.Phase{engine.PhaseRequest}
	case "headers":
		phases = []engine.Phase{engine.PhaseHeaders}
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unsupported phase %q", q.Get("phase"))})
		return
	}

	var d domain.Decision
	var phase engine.Phase
	for _, phase = range phases {
		d = s.engine.Decide(ev, phase)
		if d.Action != domain.ActionPass {
			break
		}
	}

	writeJSON(w, http.StatusOK, DecisionResponse{
		Action:       d.Action.String(),
		RedirectURL:  d.Target,
		Phase:        phase.String(),
		Slot:         d.Slot,
		Rule:         d.Rule,
		HostResponse: d.HostResponse(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Profiles())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
