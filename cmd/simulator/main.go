package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/api"
	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/config"
	"github.com/goquant/tradesim/internal/feed"
	"github.com/goquant/tradesim/internal/impact"
	"github.com/goquant/tradesim/internal/journal"
	"github.com/goquant/tradesim/internal/logging"
	"github.com/goquant/tradesim/internal/msg"
	"github.com/goquant/tradesim/internal/observability"
	"github.com/goquant/tradesim/internal/perf"
	"github.com/goquant/tradesim/internal/portfolio"
	"github.com/goquant/tradesim/internal/sim"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig("simulator")

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting simulator service",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("feed_source", cfg.FeedSource),
		zap.Strings("symbols", cfg.Symbols),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("data_dir", cfg.DataDir),
		zap.String("fee_tier", cfg.FeeTier),
		zap.Bool("impact_on_limit", cfg.ImpactOnLimit),
	)

	// Create data directory
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	// Open journal store
	dbPath := filepath.Join(cfg.DataDir, "journal.db")
	store, err := journal.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open journal store", zap.Error(err))
	}
	defer store.Close()

	logger.Info("journal store opened", zap.String("path", dbPath))

	// Create health checker
	healthChecker := observability.NewHealthChecker(logger)

	// Create Kafka producer for the outbox publisher
	producer, err := msg.NewProducer(cfg.Brokers(), cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Create outbox publisher
	publisher := journal.NewPublisher(store, producer, logger)

	// Build the shared portfolio ledger and latency monitor
	fees := cfg.Fees()
	ledger := portfolio.NewLedger(cfg.StartingCash, fees.Taker, cfg.EquityCurveLimit)
	monitor := perf.NewMonitor(cfg.PerfWindow, logger)
	model := impact.NewModel(impact.Params{
		PermanentImpact: cfg.Impact.PermanentImpact,
		TemporaryImpact: cfg.Impact.TemporaryImpact,
		TemporaryDecay:  cfg.Impact.TemporaryDecay,
		RiskAversion:    cfg.Impact.RiskAversion,
		Volatility:      cfg.Impact.Volatility,
		BaseSlippageBps: cfg.Impact.BaseSlippageBps,
		MaxImpactBps:    cfg.Impact.MaxImpactBps,
		DepthLevels:     cfg.Impact.DepthLevels,
	})

	// Build one pipeline per symbol
	books := book.NewManager()
	pipelines := make(map[string]*sim.Pipeline, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		b := books.GetOrCreate(symbol)
		engine := sim.NewEngine(symbol, model, cfg.ImpactOnLimit, logger)
		pipelines[symbol] = sim.NewPipeline(symbol, b, engine, ledger, store, monitor, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipelineErrCh := make(chan error, len(pipelines))
	for _, p := range pipelines {
		go func(p *sim.Pipeline) {
			if err := p.Run(ctx); err != nil && err != context.Canceled {
				pipelineErrCh <- err
			}
		}(p)
	}

	// Start the tick feed. Health reports NOT_READY until the first tick
	// arrives.
	healthChecker.SetFeedReady(false)
	sources, err := buildSources(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create tick feed", zap.Error(err))
	}

	feedErrCh := make(chan error, len(sources))
	var feedWG sync.WaitGroup
	for _, src := range sources {
		feedWG.Add(1)
		go func(src feed.Source) {
			defer feedWG.Done()
			if err := src.Run(ctx); err != nil && err != context.Canceled {
				feedErrCh <- err
			}
		}(src)

		go dispatchTicks(ctx, src, pipelines, healthChecker, logger)
	}

	// Start outbox publisher
	publisherErrCh := make(chan error, 1)
	go func() {
		if err := publisher.Run(ctx); err != nil && err != context.Canceled {
			publisherErrCh <- err
		}
	}()

	// Periodic latency stats
	go monitor.LogStats(ctx, 30*time.Second)

	// Start HTTP server (order API, book, portfolio, impact, health)
	apiServer := api.NewServer(pipelines, ledger, monitor, model, healthChecker, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: apiServer.Router(),
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	healthChecker.SetReady(true)
	logger.Info("simulator service started")

	// Wait for shutdown signal or fatal error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-pipelineErrCh:
		logger.Error("pipeline error", zap.Error(err))
	case err := <-feedErrCh:
		logger.Error("tick feed error", zap.Error(err))
	case err := <-publisherErrCh:
		logger.Error("outbox publisher error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("http server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("shutting down simulator service")
	healthChecker.SetReady(false)
	cancel()
	feedWG.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	logger.Info("simulator service stopped")
}

// buildSources creates the configured tick sources. The websocket feed
// needs one connection per symbol while Kafka carries all symbols on a
// single consumer.
func buildSources(cfg *config.Config, logger *zap.Logger) ([]feed.Source, error) {
	switch cfg.FeedSource {
	case "ws":
		sources := make([]feed.Source, 0, len(cfg.Symbols))
		for _, symbol := range cfg.Symbols {
			client := feed.NewWSClient(
				cfg.FeedURLFor(symbol),
				symbol,
				time.Duration(cfg.WSReconnectDelaySeconds)*time.Second,
				cfg.WSMaxReconnectAttempts,
				logger,
			)
			sources = append(sources, client)
		}
		return sources, nil
	case "kafka":
		source, err := feed.NewKafkaSource(cfg.Brokers(), "simulator-ticks-v1", logger)
		if err != nil {
			return nil, err
		}
		return []feed.Source{source}, nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.FeedSource)
	}
}

// dispatchTicks routes ticks from a source to the owning symbol pipeline.
// Ticks for unconfigured symbols are dropped.
func dispatchTicks(
	ctx context.Context,
	src feed.Source,
	pipelines map[string]*sim.Pipeline,
	health *observability.HealthChecker,
	logger *zap.Logger,
) {
	feedReady := false
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-src.Ticks():
			if !ok {
				return
			}
			if !feedReady {
				feedReady = true
				health.SetFeedReady(true)
			}
			p, ok := pipelines[t.Symbol]
			if !ok {
				logger.Debug("dropping tick for unconfigured symbol",
					zap.String("symbol", t.Symbol))
				continue
			}
			if err := p.HandleTick(ctx, t); err != nil && err != context.Canceled {
				logger.Warn("failed to enqueue tick",
					zap.String("symbol", t.Symbol),
					zap.Error(err))
			}
		}
	}
}
