package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidemark-io/tidemark/highwater"
	"github.com/tidemark-io/tidemark/telemetry"
	"github.com/tidemark-io/tidemark/tracker"
	"go.uber.org/zap"
)

// Server exposes the daemon's progress state over HTTP: /healthz for
// liveness probes, /status for operators, /metrics for Prometheus.
type Server struct {
	agent  *highwater.Agent
	trk    *tracker.Tracker
	nodeID string
	logger *zap.Logger
	srv    *http.Server
	done   chan struct{}
}

type statusResponse struct {
	NodeID          string           `json:"node_id"`
	Running         bool             `json:"running"`
	HighWaterMark   int64            `json:"high_water_mark"`
	HighestSequence int64            `json:"highest_sequence"`
	DetectedAt      time.Time        `json:"detected_at"`
	Shards          map[string]int64 `json:"shards"`
}

func NewServer(bind string, agent *highwater.Agent, trk *tracker.Tracker, nodeID string, logger *zap.Logger) *Server {
	s := &Server{
		agent:  agent,
		trk:    trk,
		nodeID: nodeID,
		logger: logger.Named("admin"),
		done:   make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Get("/healthz", s.health)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	s.srv = &http.Server{Addr: bind, Handler: r}
	return s
}

func (s *Server) Start() {
	go func() {
		defer close(s.done)
		err := s.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server terminated", zap.Error(err))
		}
	}()
}

// Stop shuts the server down, draining in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("admin server shutdown failed", zap.Error(err))
	}
	<-s.done
}

// Handler returns the route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if !s.agent.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("agent not running"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	current := s.agent.Current()
	resp := statusResponse{
		NodeID:          s.nodeID,
		Running:         s.agent.IsRunning(),
		HighWaterMark:   s.trk.HighWater(),
		HighestSequence: current.HighestSequence,
		DetectedAt:      current.Timestamp,
		Shards:          s.trk.Positions(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status response", zap.Error(err))
	}
}
