package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/crossdiff-io/crossdiff-engine/pkg/adapters"
	"github.com/crossdiff-io/crossdiff-engine/pkg/audit"
	"github.com/crossdiff-io/crossdiff-engine/pkg/compare"
	"github.com/crossdiff-io/crossdiff-engine/pkg/config"
	"github.com/crossdiff-io/crossdiff-engine/pkg/cost"
	"github.com/crossdiff-io/crossdiff-engine/pkg/handlers"
	"github.com/crossdiff-io/crossdiff-engine/pkg/logging"
	"github.com/crossdiff-io/crossdiff-engine/pkg/probe"
	"github.com/crossdiff-io/crossdiff-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load database catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded",
		zap.Int("databases", len(catalog)),
		zap.String("path", cfg.CatalogPath))

	registry := adapters.NewRegistry(catalog, adapters.RegistryOptions{
		MaxCheckoutsPerDatabase: cfg.Pool.MaxCheckoutsPerDatabase,
		AcquireTimeout:          cfg.Pool.AcquireTimeout(),
	}, logger)
	defer func() { _ = registry.Close() }()

	prober := probe.New(registry, cfg.Probe.Timeout(), logger.Named("probe"))
	estimator := cost.NewEstimator(cost.Scales{
		PostgresUnitsPerSecond: cfg.Cost.PostgresUnitsPerSecond,
		MySQLRowsPerSecond:     cfg.Cost.MySQLRowsPerSecond,
		SQLServerCostPerSecond: cfg.Cost.SQLServerCostPerSecond,
	}, cost.Thresholds{
		CeilingSeconds: cfg.Cost.CeilingSeconds,
		WarnRows:       cfg.Cost.WarnRows,
	})
	differ := compare.NewEngine(compare.Options{
		SampleCap:        cfg.Compare.SampleCap,
		MaxInProcessRows: cfg.Compare.MaxInProcessRows,
	}, logger.Named("compare"))

	orchestrator := services.NewOrchestrator(registry, prober, estimator, differ,
		audit.NewZapSink(logger), services.Options{
			DiffTimeout:     cfg.Diff.Timeout(),
			PrivilegedRoles: cfg.Safety.PrivilegedRoles,
		}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewComparisonHandler(orchestrator, logger.Named("handlers")).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting crossdiff-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
