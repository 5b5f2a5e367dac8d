package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ascension-labs/govcore/internal/adapter/fswatch"
	httpadapter "github.com/ascension-labs/govcore/internal/adapter/http"
	"github.com/ascension-labs/govcore/internal/adapter/litellm"
	natsadapter "github.com/ascension-labs/govcore/internal/adapter/nats"
	"github.com/ascension-labs/govcore/internal/adapter/natskv"
	gcotel "github.com/ascension-labs/govcore/internal/adapter/otel"
	"github.com/ascension-labs/govcore/internal/adapter/postgres"
	promadapter "github.com/ascension-labs/govcore/internal/adapter/prometheus"
	"github.com/ascension-labs/govcore/internal/adapter/ristretto"
	"github.com/ascension-labs/govcore/internal/adapter/sqlite"
	"github.com/ascension-labs/govcore/internal/adapter/tiered"
	"github.com/ascension-labs/govcore/internal/adapter/ws"
	"github.com/ascension-labs/govcore/internal/config"
	"github.com/ascension-labs/govcore/internal/domain/federation"
	"github.com/ascension-labs/govcore/internal/domain/governance"
	"github.com/ascension-labs/govcore/internal/domain/persona"
	"github.com/ascension-labs/govcore/internal/domain/stability"
	"github.com/ascension-labs/govcore/internal/logger"
	"github.com/ascension-labs/govcore/internal/middleware"
	"github.com/ascension-labs/govcore/internal/port/cache"
	"github.com/ascension-labs/govcore/internal/port/clusterregistry"
	"github.com/ascension-labs/govcore/internal/port/ledger"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
	"github.com/ascension-labs/govcore/internal/resilience"
	"github.com/ascension-labs/govcore/internal/service"
)

const (
	idempotencyTTL  = 24 * time.Hour
	personaDebounce = 500 * time.Millisecond
	shutdownTimeout = 10 * time.Second
	voteRate        = 5  // votes per second per cluster
	voteBurst       = 10 // votes
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run this cluster's HTTP API, federation bus and health monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	otelShutdown, err := gcotel.Init(ctx, gcotel.Config{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.Logging.Service,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()
	metrics, err := gcotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Ledger ---
	store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("ledger close", "error", err)
			}
		}()
	}

	// --- NATS ---
	var queue *natsadapter.Queue
	if cfg.NATS.Enabled {
		queue, err = natsadapter.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Error("nats drain", "error", err)
			}
		}()
	}

	// --- Reasoning provider ---
	llm := litellm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Timeout)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout).
		WithFailureFilter(litellm.CountsAgainstBreaker))
	provider := litellm.NewProvider(llm, cfg.LLM.Model)

	// Pipeline runs sample candidates and always reach the model. Judge,
	// critic and auditor calls are keyed by the candidate they score.
	respCache, closeCache, err := buildCache(ctx, cfg, queue)
	if err != nil {
		return err
	}
	defer closeCache()
	var scorer reasoning.Provider = provider
	if respCache != nil {
		scorer = service.NewCachedProvider(provider, respCache, cfg.Cache.L2TTL)
	}

	// --- Personas ---
	registry := service.NewPersonaRegistry(persona.Builtin())
	if cfg.Pipeline.PersonaDir != "" {
		custom, err := persona.LoadFromDirectory(cfg.Pipeline.PersonaDir)
		if err != nil {
			return fmt.Errorf("personas: %w", err)
		}
		for i := range custom {
			if err := registry.Register(&custom[i]); err != nil {
				return fmt.Errorf("persona %s: %w", custom[i].Key, err)
			}
		}
		slog.Info("personas loaded", "dir", cfg.Pipeline.PersonaDir, "count", len(custom))
	}

	hub := ws.NewHub()
	defer hub.Close()

	// --- Services ---
	pipeline := service.NewRolePipeline(registry, provider, cfg.LLM.Temperature)
	pipeline.SetMetrics(metrics)

	risk := stability.DefaultRiskModel()
	risk.ProtectedPaths = cfg.Governance.ProtectedPaths
	risk.ProtectedIncrement = cfg.Governance.ProtectedIncrement
	engine := service.NewStabilityEngine(risk)

	mode, err := governance.ParseMode(cfg.Governance.Mode)
	if err != nil {
		return err
	}
	gov, err := service.NewGovernanceManager(governance.Config{
		Mode:                  mode,
		MaxRiskScore:          cfg.Governance.MaxRiskScore,
		MinFitnessImprovement: cfg.Governance.MinFitnessImprovement,
		RequireHumanApproval:  cfg.Governance.RequireHumanApproval,
	}, hub)
	if err != nil {
		return fmt.Errorf("governance: %w", err)
	}
	gov.SetMetrics(metrics)
	meta := service.NewMetaGovernanceEngine(gov, store, hub)

	self := federation.ClusterInfo{
		ID:     cfg.Federation.ClusterID,
		Name:   cfg.Federation.ClusterName,
		Region: cfg.Federation.Region,
	}
	members := clusterregistry.NewStatic(clusterInfos(self, cfg.Federation.Clusters))
	infos, err := members.Clusters(ctx)
	if err != nil {
		return fmt.Errorf("cluster registry: %w", err)
	}
	ids := make([]string, len(infos))
	for i, c := range infos {
		ids[i] = c.ID
	}

	consensus := service.NewConsensusEngine(ids, store, hub)
	consensus.SetMetrics(metrics)
	rollback := service.NewFederationRollbackManager(consensus, cfg.Federation.CriticalThreshold, hub)
	rollback.SetMetrics(metrics)

	var (
		bus     *service.FederationBus
		monitor *service.HealthMonitor
		fitness promadapter.FitnessSource
	)
	if queue != nil {
		bus, err = service.NewFederationBus(self.ID, []byte(cfg.Federation.Secret), cfg.Federation.PacketMaxAge, queue, consensus)
		if err != nil {
			return err
		}
		if err := bus.Start(ctx); err != nil {
			return fmt.Errorf("federation bus: %w", err)
		}
		defer bus.Stop()
		fitness = bus

		monitor = service.NewHealthMonitor(bus, rollback, cfg.Federation.HealthInterval, cfg.Federation.RollbackCooldown)
		go monitor.Run(ctx)
		slog.Info("federation bus started", "cluster_id", self.ID, "members", len(ids))
	} else {
		slog.Warn("nats disabled, federation bus and health monitor not started")
	}

	evaluator := service.NewJudgeEvaluator(registry, scorer)
	chamber := service.NewChamber(service.ChamberDeps{
		Registry:  registry,
		Pipeline:  pipeline,
		Evaluator: evaluator,
		Engine:    engine,
		Store:     store,
		Hub:       hub,
		Metrics:   metrics,
	})
	cluster := service.NewClusterService(service.ClusterDeps{
		Info:       self,
		Registry:   registry,
		Pipeline:   pipeline,
		Provider:   scorer,
		Evaluator:  evaluator,
		Engine:     engine,
		Governance: gov,
		Candidates: cfg.Pipeline.Candidates,
	})

	if cfg.Pipeline.Watch && cfg.Pipeline.PersonaDir != "" {
		w, err := fswatch.New(cfg.Pipeline.PersonaDir, registry, personaDebounce)
		if err != nil {
			return fmt.Errorf("persona watcher: %w", err)
		}
		go w.Run(ctx)
	}

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(voteRate, voteBurst, middleware.ByCluster)
	go limiter.Run(ctx, time.Minute, 10*time.Minute)

	promReg := promadapter.NewRegistry(promadapter.NewCollector(consensus, fitness, gov))

	handlers := &httpadapter.Handlers{
		Consensus:         consensus,
		Bus:               bus,
		Rollback:          rollback,
		Monitor:           monitor,
		Governance:        gov,
		Meta:              meta,
		Chamber:           chamber,
		Cluster:           cluster,
		Personas:          registry,
		Stability:         engine,
		LiteLLM:           llm,
		Version:           version,
		ValidationTimeout: cfg.Chamber.ValidationTimeout,
	}

	r := chi.NewRouter()
	r.Use(gcotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(httpadapter.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(httpadapter.Logger)
	r.Use(chimw.Recoverer)

	opts := httpadapter.RouteOptions{
		VoteLimiter:    limiter,
		Idempotency:    respCache,
		IdempotencyTTL: idempotencyTTL,
		WS:             hub.HandleWS,
		Metrics:        promadapter.Handler(promReg),
	}
	httpadapter.MountRoutes(r, handlers, opts)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", srv.Addr, "cluster_id", self.ID, "mode", mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openLedger opens the configured audit store. The "none" driver returns a
// nil store and the services keep their records in memory only.
func openLedger(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Driver {
	case "postgres":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		slog.Info("ledger ready", "driver", "postgres")
		return postgres.NewStore(pool), nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		slog.Info("ledger ready", "driver", "sqlite", "path", cfg.Ledger.SQLitePath)
		return s, nil
	default:
		slog.Warn("ledger disabled, audit records are not persisted")
		return nil, nil
	}
}

// buildCache assembles the provider response cache: a local ristretto L1
// and, with NATS, a federation-wide JetStream KV L2.
func buildCache(ctx context.Context, cfg *config.Config, queue *natsadapter.Queue) (cache.Cache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	if queue == nil {
		return l1, l1.Close, nil
	}
	kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		l1.Close()
		return nil, nil, fmt.Errorf("l2 cache: %w", err)
	}
	return tiered.New(l1, natskv.New(kv, "govcore"), time.Hour), l1.Close, nil
}

// clusterInfos returns the configured members with self included.
func clusterInfos(self federation.ClusterInfo, configured []config.Cluster) []federation.ClusterInfo {
	out := make([]federation.ClusterInfo, 0, len(configured)+1)
	found := false
	for _, c := range configured {
		if c.ID == self.ID {
			found = true
		}
		out = append(out, federation.ClusterInfo{ID: c.ID, Name: c.Name, Region: c.Region})
	}
	if !found {
		out = append(out, self)
	}
	return out
}

// writeTimeout leaves room for a full validation pass, which runs the
// pipeline twice inside one request.
func writeTimeout(cfg *config.Config) time.Duration {
	const base = 60 * time.Second
	if t := cfg.Chamber.ValidationTimeout + 30*time.Second; t > base {
		return t
	}
	return base
}
