package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curvesentinel/node/api"
	"github.com/curvesentinel/node/internal/agent"
	"github.com/curvesentinel/node/internal/agents"
	"github.com/curvesentinel/node/internal/chain"
	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/internal/eventbus"
	"github.com/curvesentinel/node/internal/execution"
	"github.com/curvesentinel/node/internal/ingestion"
	"github.com/curvesentinel/node/internal/intel"
	"github.com/curvesentinel/node/internal/orchestrator"
	"github.com/curvesentinel/node/internal/policy"
	"github.com/curvesentinel/node/internal/reasoning"
	"github.com/curvesentinel/node/internal/risk"
	"github.com/curvesentinel/node/internal/signalbus"
	"github.com/curvesentinel/node/internal/state"
	"github.com/curvesentinel/node/internal/store"
	"github.com/curvesentinel/node/pkg/observability"
)

// Startup order follows §6 exactly: logger, relational store,
// KV store, RPC context + health check, shared infra, the always-on
// core engines, then (optionally) the intelligence stores and the
// agent swarm, then HTTP. Shutdown stops HTTP, the metrics and tracing
// providers, the swarm, ingestion and the state engine, then closes the
// KV store, the relational store and the chain client.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracing *observability.TracingProvider
	if cfg.Observability.JaegerEndpoint != "" {
		tracing, err = observability.NewTracingProvider(cfg.Observability)
		if err != nil {
			logger.Warn(ctx, "failed to start tracing provider, continuing without span export", map[string]interface{}{"error": err.Error()})
			tracing = nil
		}
	}

	pg, err := store.NewPostgres(cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to relational store: %v", err)
	}

	kv, err := store.NewKV(cfg.Redis, logger)
	if err != nil {
		log.Fatalf("failed to connect to kv store: %v", err)
	}

	chainClient, err := chain.NewClient(ctx, cfg.Chain, logger)
	if err != nil {
		log.Fatalf("failed to build chain client: %v", err)
	}
	if err := chainClient.Health(ctx); err != nil {
		log.Fatalf("rpc health check failed: %v", err)
	}

	wallet, err := chain.LoadWallet(cfg.Wallet)
	if err != nil {
		log.Fatalf("failed to load wallet: %v", err)
	}

	// Shared infra container.
	bus := eventbus.New(logger)
	stateEngine := state.New(logger, pg, kv, bus)
	policyEngine := policy.New(logger, pg, stateEngine, bus)
	riskEngine := risk.New(cfg.Risk, stateEngine)
	execEngine := execution.New(logger, riskEngine, stateEngine, chainClient, wallet, pg)
	ingestionSubscriber := ingestion.New(logger, chainClient, pg, pg, bus)
	orch := orchestrator.New(logger, bus, policyEngine, stateEngine, execEngine, orchestrator.RiskDefaults{
		MaxSlippageBps:     cfg.Risk.MaxSlippageBps,
		MaxPriorityFeeBase: cfg.Risk.MaxPriorityFeeBase,
	})

	if err := stateEngine.Start(ctx); err != nil {
		log.Fatalf("failed to start state engine: %v", err)
	}
	if err := policyEngine.Start(ctx); err != nil {
		log.Fatalf("failed to start policy engine: %v", err)
	}
	if err := ingestionSubscriber.Start(ctx); err != nil {
		log.Fatalf("failed to start event ingestion: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("failed to start orchestrator: %v", err)
	}

	var swarm *agent.Swarm
	if cfg.Swarm.Enabled {
		graph := intel.NewWalletGraph(kv)
		scores := intel.NewDeployerScoreEngine(kv)
		patterns := intel.NewPatternDatabase(kv)
		signals := signalbus.New(cfg.Node, kv, logger)

		reasoner, err := reasoning.New(cfg.Swarm, logger)
		if err != nil {
			log.Fatalf("failed to build reasoning client: %v", err)
		}

		mailbox := agent.NewMailbox()
		swarm = agent.NewSwarm(logger)
		swarm.Register(agents.NewScout(chainClient, graph, scores, signals, mailbox, logger))
		swarm.Register(agents.NewAnalyst(chainClient, graph, patterns, reasoner, mailbox, logger))
		swarm.Register(agents.NewStrategist(stateEngine, reasoner, mailbox, cfg.Risk, logger))
		swarm.Register(agents.NewSentinel(chainClient, stateEngine, graph, signals, reasoner, mailbox, logger))
		swarm.Register(agents.NewExecutor(chainClient, wallet, execEngine, stateEngine, pg, mailbox, logger))
		swarm.Register(agents.NewMemory(kv, mailbox, logger))

		swarm.Start(ctx)
		logger.Info(ctx, "agent swarm started", nil)
	}

	var metrics *observability.MetricsProvider
	if cfg.Observability.ServiceName != "" {
		metrics, err = observability.NewMetricsProvider(observability.MetricsConfig{
			ServiceName:    cfg.Observability.ServiceName,
			ServiceVersion: "dev",
			Namespace:      "curvesentinel",
			Port:           cfg.Observability.MetricsPort,
			Enabled:        true,
		})
		if err != nil {
			logger.Warn(ctx, "failed to start metrics provider, continuing without it", map[string]interface{}{"error": err.Error()})
			metrics = nil
		} else {
			go func() {
				if err := metrics.StartMetricsServer(cfg.Observability.MetricsPort); err != nil {
					logger.Warn(ctx, "failed to start metrics http server", map[string]interface{}{"error": err.Error()})
				}
			}()
		}
	}

	httpServer := api.New(logger, cfg.Server, cfg.RateLimit, api.Deps{
		Store:       pg,
		KV:          kv,
		State:       stateEngine,
		Policy:      policyEngine,
		Chain:       chainClient,
		Wallet:      wallet,
		ExecEngine:  execEngine,
		Risk:        cfg.Risk,
		Metrics:     metrics,
		ServiceName: cfg.Observability.ServiceName,
	})

	// Supplementary k8s-probe endpoints under /internal, distinct from
	// the operator-facing /health the HTTP surface names. Mounted on the
	// same router rather than a second listener.
	checker := observability.NewHealthChecker(logger)
	checker.RegisterCheck("database", observability.DatabaseHealthCheck(pg.Health))
	checker.RegisterCheck("redis", observability.DatabaseHealthCheck(kv.Health))
	checker.RegisterCheck("rpc", observability.DatabaseHealthCheck(chainClient.Health))
	healthServer := observability.NewHealthServer(checker, observability.ServiceInfo{
		Name:    cfg.Observability.ServiceName,
		Version: "dev",
	}, logger)
	healthServer.RegisterRoutes(httpServer.Router().PathPrefix("/internal").Subrouter())

	if err := httpServer.Start(ctx); err != nil {
		log.Fatalf("failed to start http server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info(ctx, "received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "failed to stop http server", err)
	}
	if metrics != nil {
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "failed to stop metrics provider", err)
		}
	}
	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "failed to stop tracing provider", err)
		}
	}
	if swarm != nil {
		swarm.Stop(shutdownCtx)
	}
	if err := ingestionSubscriber.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "failed to stop event ingestion", err)
	}
	// The policy engine and orchestrator are pure bus subscribers with no
	// background goroutine or held resource, so they have nothing to stop.
	if err := stateEngine.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "failed to stop state engine", err)
	}
	if err := kv.Close(); err != nil {
		logger.Error(shutdownCtx, "failed to close kv store", err)
	}
	if err := pg.Close(); err != nil {
		logger.Error(shutdownCtx, "failed to close relational store", err)
	}
	if err := chainClient.Close(); err != nil {
		logger.Error(shutdownCtx, "failed to close chain client", err)
	}

	logger.Info(shutdownCtx, "shutdown complete", nil)
}
