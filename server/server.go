// Package server exposes the loyalty core over HTTP. Handlers are thin: all
// business rules live in the loyalty and wallet packages.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"loyaltyd/loyalty"
	loyaltymw "loyaltyd/middleware"
	"loyaltyd/wallet"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	DB             *gorm.DB
	Registry       *loyalty.Registry
	Allocator      *loyalty.Allocator
	StepUp         *loyalty.StepUpEngine
	Ripple         *loyalty.RippleEngine
	Wallet         *wallet.Service
	Log            *slog.Logger
	TransferFeeBps uint32
	RateLimit      loyaltymw.RateLimit
}

// Server wires the HTTP API for the loyalty core.
type Server struct {
	db             *gorm.DB
	registry       *loyalty.Registry
	allocator      *loyalty.Allocator
	stepUp         *loyalty.StepUpEngine
	ripple         *loyalty.RippleEngine
	wallet         *wallet.Service
	log            *slog.Logger
	transferFeeBps uint32

	router http.Handler
}

// New constructs a configured HTTP router with idempotency and rate limiting.
func New(cfg Config) *Server {
	srv := &Server{
		db:             cfg.DB,
		registry:       cfg.Registry,
		allocator:      cfg.Allocator,
		stepUp:         cfg.StepUp,
		ripple:         cfg.Ripple,
		wallet:         cfg.Wallet,
		log:            cfg.Log,
		transferFeeBps: cfg.TransferFeeBps,
	}
	if srv.log == nil {
		srv.log = slog.Default()
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limit loyaltymw.RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loyaltymw.RequestLogger(s.log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	limiter := loyaltymw.NewRateLimiter(limit)
	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(mutating chi.Router) {
			mutating.Use(limiter.Middleware)
			mutating.Use(func(next http.Handler) http.Handler { return loyaltymw.WithIdempotency(s.db, next) })
			mutating.Post("/customers", s.RegisterCustomer)
			mutating.Post("/activities", s.RecordActivity)
			mutating.Post("/customers/{id}/wallet/transfer", s.TransferWallet)
			mutating.Post("/customers/{id}/deactivate", s.DeactivateCustomer)
		})
		api.Get("/customers/{id}", s.GetCustomer)
		api.Get("/customers/{id}/global-numbers", s.GetGlobalNumbers)
		api.Get("/customers/{id}/stepup-rewards", s.GetStepUpRewards)
		api.Get("/customers/{id}/ripple-rewards", s.GetRippleRewards)
		api.Get("/customers/{id}/wallet", s.GetWallet)
		api.Get("/customers/{id}/wallet/ledger", s.GetWalletLedger)
		api.Get("/customers/{id}/wallet/reconcile", s.ReconcileWallet)
	})
	return r
}

// Healthz verifies database connectivity.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
