// Package server exposes the upload, polling and report endpoints over HTTP.
package server

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/patent-analysis-service/internal/config"
	"github.com/toricodesthings/patent-analysis-service/internal/extract"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
	"github.com/toricodesthings/patent-analysis-service/internal/worker"
)

const Version = "1.0.0"

// Dispatcher runs accepted uploads in the background.
type Dispatcher interface {
	Submit(job worker.Job)
	Running() int64
}

type Server struct {
	cfg        config.Config
	tasks      *task.Registry
	extractors *extract.Registry
	dispatcher Dispatcher

	requestSem *semaphore.Weighted
	metrics    *serverMetrics

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	now func() time.Time
}

func New(cfg config.Config, tasks *task.Registry, extractors *extract.Registry, dispatcher Dispatcher) *Server {
	maxReq := cfg.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 15
	}
	cfg.MaxConcurrentRequests = maxReq

	return &Server{
		cfg:        cfg,
		tasks:      tasks,
		extractors: extractors,
		dispatcher: dispatcher,
		requestSem: semaphore.NewWeighted(maxReq),
		metrics:    &serverMetrics{},
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
}

// Handler returns the routed handler wrapped in CORS, access logging and
// panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /upload",
		s.withRateLimit(
			s.withConcurrencyLimit(s.handleUpload)))

	mux.HandleFunc("GET /analyze/{task_id}", s.handleAnalyze)
	mux.HandleFunc("GET /status/{task_id}", s.handleStatus)
	mux.HandleFunc("GET /report/{task_id}", s.handleReport)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	return withLogging(withRecovery(c.Handler(mux)))
}

// RunMaintenance logs runtime stats and drops idle rate limiters every
// interval until ctx is done.
func (s *Server) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		counts := s.tasks.Counts()
		log.Info().
			Int64("active", active).
			Int64("total", total).
			Int("goroutines", runtime.NumGoroutine()).
			Uint64("memMB", m.Alloc/(1<<20)).
			Int("pending", counts[task.StatusPending]).
			Int("processing", counts[task.StatusProcessing]).
			Msg("stats")

		s.resetLimiters()
	}
}

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	uploads       int64
	rejected      int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}

func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}

func (m *serverMetrics) accepted() {
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
}

func (m *serverMetrics) reject() {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}

func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

func (m *serverMetrics) uploadCounts() (accepted, rejected int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads, m.rejected
}
