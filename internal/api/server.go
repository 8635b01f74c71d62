package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lox/wandistats/internal/history"
	"github.com/lox/wandistats/internal/narrative"
	"github.com/lox/wandistats/internal/store"
)

// DefaultRateLimit is the per-IP request budget for the /api routes.
const DefaultRateLimit = 100

type Server struct {
	store     *store.Store
	history   *history.Service
	narrator  *narrative.Narrator
	log       zerolog.Logger
	addr      string
	rateLimit int
	now       func() time.Time
}

type Option func(*Server)

// WithNarrator enables ?narrate=1 on /api/stats.
func WithNarrator(n *narrative.Narrator) Option {
	return func(s *Server) { s.narrator = n }
}

// WithRateLimit sets the requests per minute allowed per client IP.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(store *store.Store, svc *history.Service, addr string, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:     store,
		history:   svc,
		log:       logger.With().Str("component", "api").Logger(),
		addr:      addr,
		rateLimit: DefaultRateLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
		r.Get("/stations", s.handleStations)
		r.Get("/intervals", s.handleIntervals)
		r.Get("/range", s.handleRange)
		r.Get("/summaries", s.handleSummaries)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request completed")
		})
	}
}
