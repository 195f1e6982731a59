// server.go - HTTP server wiring and lifecycle.

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"medproof/internal/disclosure"
	"medproof/internal/health"
	"medproof/internal/logging"
	"medproof/internal/metrics"
	"medproof/internal/ratelimit"
	"medproof/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine generates and verifies disclosure proofs.
type Engine interface {
	disclosure.Prover
	disclosure.Verifier
	Method() string
}

// Options collects the server's collaborators. Store and Engine are required.
type Options struct {
	Store      store.Store
	Engine     Engine
	Thresholds disclosure.Thresholds
	Logger     *logging.Logger
	Metrics    *metrics.Collector
	Health     *health.Checker
	Limiter    *ratelimit.ClientLimiter
}

// Server serves the medproof REST API.
type Server struct {
	store      store.Store
	engine     Engine
	thresholds disclosure.Thresholds
	log        *logging.Logger
	metrics    *metrics.Collector
	health     *health.Checker
	limiter    *ratelimit.ClientLimiter
	newID      func() string
	now        func() time.Time
	router     chi.Router
}

// NewServer builds the router. Missing optional collaborators get working defaults.
func NewServer(opts Options) *Server {
	s := &Server{
		store:      opts.Store,
		engine:     opts.Engine,
		thresholds: opts.Thresholds,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		health:     opts.Health,
		limiter:    opts.Limiter,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if s.thresholds == (disclosure.Thresholds{}) {
		s.thresholds = disclosure.DefaultThresholds()
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.health == nil {
		s.health = health.NewChecker("dev", 0)
		s.health.Register("store", s.store.Ping)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", s.health.Handler())
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/studies", func(studies chi.Router) {
			studies.Post("/", s.handleCreateStudy)
			studies.Get("/{commitment}", s.handleGetStudy)
			studies.Get("/{commitment}/proofs", s.handleListStudyProofs)
		})
		api.Route("/proofs", func(proofs chi.Router) {
			proofs.Post("/verify", s.handleVerifyProof)
			proofs.Get("/{id}", s.handleGetProof)
			proofs.Group(func(limited chi.Router) {
				if s.limiter != nil {
					limited.Use(s.limiter.Middleware(s.rejectRateLimited))
				}
				limited.Post("/", s.handleCreateProof)
			})
		})
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info().Str("addr", addr).Str("method", s.engine.Method()).Msg("api server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
