// Package status implements the StatusSurface (C10): a read-only HTTP
// projection of pipeline health for liveness/readiness probes and the
// realtime dashboard.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ethproofs/ethproofs-prover/internal/sysinfo"
)

// ProverStuckThreshold is the default proving_duration_seconds past
// which the Prover is considered degraded (spec.md §4.10).
const ProverStuckThreshold = 3600 * time.Second

// OverallStatus is the coarse health classification returned by /health.
type OverallStatus string

const (
	StatusHealthy   OverallStatus = "healthy"
	StatusDegraded  OverallStatus = "degraded"
	StatusUnhealthy OverallStatus = "unhealthy"
)

// ComponentStatus names a single component's reported state.
type ComponentStatus string

const (
	ComponentUp   ComponentStatus = "up"
	ComponentDown ComponentStatus = "down"
)

// ProverProbe reports the Prover's current state, tolerating an absent
// or unresponsive Prover by returning the zero value (treated as down).
type ProverProbe interface {
	ProverSnapshot() (up bool, proving bool, provingDurationSeconds float64)
}

// InputGeneratorProbe reports whether the InputGenerator is alive.
type InputGeneratorProbe interface {
	InputGeneratorUp() bool
}

// TaskHostProbe reports whether the worker substrate hosting
// InputGenerator's workers is present (spec.md §4.10's "task host").
type TaskHostProbe interface {
	TaskHostUp() bool
}

// Surface serves the HTTP health endpoints.
type Surface struct {
	prover         ProverProbe
	inputGenerator InputGeneratorProbe
	taskHost       TaskHostProbe
	stuckThreshold time.Duration
	started        time.Time
	log            *zap.Logger

	server *http.Server
}

// Option configures a Surface.
type Option func(*Surface)

// WithStuckThreshold overrides ProverStuckThreshold.
func WithStuckThreshold(d time.Duration) Option {
	return func(s *Surface) { s.stuckThreshold = d }
}

// New constructs a Surface bound to addr. Call Run to start serving.
func New(addr string, prover ProverProbe, inputGenerator InputGeneratorProbe, taskHost TaskHostProbe, log *zap.Logger, opts ...Option) *Surface {
	s := &Surface{
		prover:         prover,
		inputGenerator: inputGenerator,
		taskHost:       taskHost,
		stuckThreshold: ProverStuckThreshold,
		started:        time.Now(),
		log:            log.Named("status"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", s.handleLive)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
	return s
}

// Run serves HTTP until ctx is canceled, then gracefully shuts down.
func (s *Surface) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("status server shutdown failed", zap.Error(err))
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Surface) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Surface) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.overallStatus() == StatusHealthy {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

type healthResponse struct {
	Status        OverallStatus              `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Components    map[string]ComponentStatus `json:"components"`
	System        sysinfo.Snapshot           `json:"system"`
}

func (s *Surface) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := s.overallStatus()

	components := map[string]ComponentStatus{
		"prover":          s.componentStatus(s.proverUp()),
		"input_generator": s.componentStatus(s.inputGeneratorUp()),
		"task_host":       s.componentStatus(s.taskHostUp()),
	}

	resp := healthResponse{
		Status:        overall,
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(s.started).Seconds(),
		Components:    components,
		System:        sysinfo.Collect(),
	}

	w.Header().Set("Content-Type", "application/json")
	if overall == StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Surface) componentStatus(up bool) ComponentStatus {
	if up {
		return ComponentUp
	}
	return ComponentDown
}

func (s *Surface) proverUp() bool {
	if s.prover == nil {
		return false
	}
	up, _, _ := s.prover.ProverSnapshot()
	return up
}

func (s *Surface) inputGeneratorUp() bool {
	if s.inputGenerator == nil {
		return false
	}
	return s.inputGenerator.InputGeneratorUp()
}

func (s *Surface) taskHostUp() bool {
	if s.taskHost == nil {
		return false
	}
	return s.taskHost.TaskHostUp()
}

// overallStatus implements spec.md §4.10's rules, tolerating absent or
// failing probes by treating them as down rather than erroring.
func (s *Surface) overallStatus() OverallStatus {
	if !s.proverUp() || !s.inputGeneratorUp() || !s.taskHostUp() {
		return StatusUnhealthy
	}

	if s.prover != nil {
		_, proving, duration := s.prover.ProverSnapshot()
		if proving && duration > s.stuckThreshold.Seconds() {
			return StatusDegraded
		}
	}

	return StatusHealthy
}
