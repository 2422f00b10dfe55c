package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/handler"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/middleware"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/metrics"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler *handler.AccountHandler
	BucketHandler  *handler.BucketHandler
	JournalHandler *handler.JournalHandler
	LedgerHandler  *handler.LedgerHandler
	HealthHandler  *handler.HealthHandler

	// IdempotencyStore enables Idempotency-Key replay when set.
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration

	// Verifier enables bearer token authentication and role checks when set.
	Verifier middleware.TokenVerifier

	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}

	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	role := func(min domain.Role) func(http.Handler) http.Handler {
		if cfg.Verifier == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(min)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Verifier != nil {
			r.Use(middleware.Authenticate(cfg.Verifier))
		}
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Route("/accounts", func(r chi.Router) {
			r.With(role(domain.RoleService)).Post("/", cfg.AccountHandler.Create)
			r.With(role(domain.RoleViewer)).Get("/", cfg.AccountHandler.List)
			r.With(role(domain.RoleViewer)).Get("/by-number/{number}", cfg.AccountHandler.GetByNumber)

			r.Route("/{id}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(role(domain.RoleViewer))
					r.Get("/", cfg.AccountHandler.Get)
					r.Get("/balances", cfg.AccountHandler.Balances)
					r.Get("/sufficient", cfg.BucketHandler.Sufficient)
					r.Get("/journal-entries", cfg.JournalHandler.ListByAccount)
				})

				r.Group(func(r chi.Router) {
					r.Use(role(domain.RoleService))
					r.Post("/reserve", cfg.BucketHandler.Move(domain.BucketOpReserve))
					r.Post("/release", cfg.BucketHandler.Move(domain.BucketOpRelease))
					r.Post("/escrow", cfg.BucketHandler.Move(domain.BucketOpEscrow))
					r.Post("/escrow/release", cfg.BucketHandler.Move(domain.BucketOpEscrowRelease))
				})

				r.Group(func(r chi.Router) {
					r.Use(role(domain.RoleCompliance))
					r.Post("/freeze", cfg.BucketHandler.Move(domain.BucketOpFreeze))
					r.Post("/unfreeze", cfg.BucketHandler.Move(domain.BucketOpUnfreeze))
					r.Get("/reconciliation", cfg.LedgerHandler.ReconcileAccount)
				})

				r.Group(func(r chi.Router) {
					r.Use(role(domain.RoleAdmin))
					r.Post("/parent", cfg.AccountHandler.SetParent)
					r.Post("/close", cfg.AccountHandler.Close)
					r.Post("/deactivate", cfg.AccountHandler.Deactivate)
					r.Post("/activate", cfg.AccountHandler.Activate)
				})
			})
		})

		r.With(role(domain.RoleService)).Post("/transactions", cfg.JournalHandler.PostTransaction)

		r.Route("/journal-entries", func(r chi.Router) {
			r.With(role(domain.RoleService)).Post("/", cfg.JournalHandler.PostJournalEntry)
			r.With(role(domain.RoleViewer)).Get("/{ref}", cfg.JournalHandler.Get)
			r.With(role(domain.RoleAdmin)).Post("/{ref}/reverse", cfg.JournalHandler.Reverse)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.With(role(domain.RoleViewer)).Get("/trial-balance", cfg.LedgerHandler.TrialBalance)
			r.With(role(domain.RoleViewer)).Get("/audit-trail", cfg.LedgerHandler.AuditTrail)
			r.With(role(domain.RoleCompliance)).Get("/audit-logs", cfg.LedgerHandler.AuditLogs)
			r.With(role(domain.RoleCompliance)).Get("/reconciliation", cfg.LedgerHandler.Reconcile)
		})
	})

	return r
}
