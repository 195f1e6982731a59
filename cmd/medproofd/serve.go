// serve.go - Long-running daemon: HTTP API plus the optional peer node.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"medproof/internal/api"
	"medproof/internal/config"
	"medproof/internal/disclosure"
	"medproof/internal/health"
	"medproof/internal/logging"
	"medproof/internal/metrics"
	"medproof/internal/peer"
	"medproof/internal/ratelimit"
	"medproof/internal/store"
)

func cmdServe(c *cli.Context) error {
	cfg, err := config.Load(config.ResolvePath(c.String("config")))
	if err != nil {
		return err
	}
	return run(c.Context, cfg)
}

// run wires every component from cfg and blocks until ctx is cancelled.
// Steps:
//  1. Logging and metrics
//  2. Storage
//  3. Proving engine
//  4. Peer node and health checks
//  5. HTTP API
func run(ctx context.Context, cfg *config.Config) error {
	// Step 1: Ambient
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	collector := metrics.NewCollector()

	// Step 2: Storage
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("store opened")

	// Step 3: Engine
	engine, err := buildEngine(cfg.Proof, collector)
	if err != nil {
		return err
	}
	logger.Info().Str("method", engine.Method()).Msg("proving engine ready")

	// Step 4: Peers and health
	checker := health.NewChecker(version, 3*time.Second)
	checker.Register("store", st.Ping)
	checker.Register("prover", nil)
	if cfg.Peers.Enabled {
		node := peer.NewNode(cfg.Peers.NodeID, cfg.Peers.Address, cfg.Peers.Directory,
			peer.WithLogger(logger.Logger),
			peer.WithMetrics(collector),
		)
		node.EnableCommitmentExchange(peer.StoreLookup(st))
		if err := node.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = node.Shutdown(shutdownCtx)
		}()
		checker.Register("peers", node.Check)
	}

	// Step 5: API
	var limiter *ratelimit.ClientLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.NewClientLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
		go pruneLimiter(ctx, limiter)
	}
	server := api.NewServer(api.Options{
		Store:      st,
		Engine:     engine,
		Thresholds: cfg.Proof.Thresholds,
		Logger:     logger,
		Metrics:    collector,
		Health:     checker,
		Limiter:    limiter,
	})
	logger.Audit("daemon_started", map[string]any{
		"version": version,
		"method":  engine.Method(),
		"store":   cfg.Storage.Driver,
	})
	defer logger.Audit("daemon_stopped", map[string]any{"version": version})
	return server.Start(ctx, cfg.Server.Address, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}

func buildEngine(pc config.ProofConfig, collector *metrics.Collector) (*disclosure.Engine, error) {
	opts := []disclosure.Option{
		disclosure.WithStudyType(pc.StudyType),
		disclosure.WithStrictArms(pc.StrictArms),
	}
	if pc.Backend != config.BackendGroth16 {
		return disclosure.NewPlaceholder(opts...), nil
	}
	start := time.Now()
	keys, err := disclosure.SetupOrLoadKeys(pc.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("load groth16 keys from %s: %w", pc.KeyDir, err)
	}
	collector.RecordCircuitSetup(time.Since(start))
	return disclosure.NewGroth16(keys, opts...)
}

func pruneLimiter(ctx context.Context, l *ratelimit.ClientLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}
