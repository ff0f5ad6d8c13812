package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"loyaltyd/config"
	"loyaltyd/loyalty"
	loyaltymw "loyaltyd/middleware"
	"loyaltyd/models"
	"loyaltyd/observability/logging"
	telemetry "loyaltyd/observability/otel"
	"loyaltyd/server"
	"loyaltyd/wallet"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.Setup("loyaltyd", cfg.Env)

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "loyaltyd",
			Environment: cfg.Env,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	manifest, err := config.LoadHookManifest(cfg.HookManifestPath)
	if err != nil {
		log.Fatalf("hook manifest error: %v", err)
	}

	walletSvc := wallet.NewService(db, nil)
	hooks := loyalty.NewHookDispatcher(logger)
	registerHooks(hooks, manifest, logger)
	ripple := loyalty.NewRippleEngine(db, walletSvc, logger, nil)
	stepUp := loyalty.NewStepUpEngine(db, walletSvc, ripple, hooks, logger, nil)
	allocator := loyalty.NewAllocator(db, stepUp, logger, nil)
	registry := loyalty.NewRegistry(db, nil)

	srv := server.New(server.Config{
		DB:             db,
		Registry:       registry,
		Allocator:      allocator,
		StepUp:         stepUp,
		Ripple:         ripple,
		Wallet:         walletSvc,
		Log:            logger,
		TransferFeeBps: cfg.TransferFeeBps,
		RateLimit: loyaltymw.RateLimit{
			RequestsPerMinute: cfg.RateLimitPerMin,
			Burst:             cfg.RateLimitBurst,
		},
	})

	handler := otelhttp.NewHandler(srv.Handler(), "loyaltyd")
	addr := ":" + cfg.Port
	logger.Info("starting loyaltyd", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openDatabase(url string) (*gorm.DB, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return gorm.Open(postgres.Open(url), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(url), &gorm.Config{})
}

// registerHooks binds the built-in handler kinds named by the manifest. The
// stock handlers are side-effect stubs for downstream modules: they log the
// trigger and rely on subscribers consuming the structured log stream.
func registerHooks(hooks *loyalty.HookDispatcher, manifest config.HookManifest, logger *slog.Logger) {
	for _, spec := range manifest.Hooks {
		spec := spec
		switch spec.Kind {
		case "voucher":
			hooks.Register(spec.Threshold, spec.Name, func(ctx context.Context, customerID uuid.UUID, amount int64) error {
				logger.Info("bonus voucher triggered", "hook", spec.Name, "customer_id", customerID.String(), "amount", amount)
				return nil
			})
		case "infinity":
			hooks.Register(spec.Threshold, spec.Name, func(ctx context.Context, customerID uuid.UUID, amount int64) error {
				logger.Info("infinity reward triggered", "hook", spec.Name, "customer_id", customerID.String(), "amount", amount)
				return nil
			})
		default:
			log.Printf("unknown hook kind %q for %s, skipping", spec.Kind, spec.Name)
		}
	}
}
