package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/config"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/oracle"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/server"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/server/api"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/version"

	// Import sources to register them
	_ "github.com/Galaxy-KJ/galaxy-oracle/pkg/sources/cex"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting galaxy-oracle", "version", version.Short())

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runServer(ctx, cfg, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		select {
		case <-errChan:
		case <-time.After(10 * time.Second):
			logger.Warn("Shutdown timed out")
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
		cancel()
	}

	logger.Info("Shutdown complete")
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	engineCfg := oracleConfig(cfg)

	strategy, err := oracle.NewStrategy(strings.ToLower(cfg.Oracle.Strategy), engineCfg)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	engine, err := oracle.NewAggregator(engineCfg, strategy, logger)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}
	logger.Info("Created aggregation engine", "strategy", strategy.Name(), "min_sources", engineCfg.MinSources)

	// Initialize sources
	registered := 0
	for _, sourceCfg := range cfg.Sources {
		if !sourceCfg.Enabled {
			continue
		}

		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name, "weight", sourceCfg.Weight)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}

		if err := engine.AddSource(source, sourceCfg.Weight); err != nil {
			logger.Warn("Failed to register source", "source", source.Name(), "error", err)
			continue
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("no sources available")
	}

	// Start HTTP server
	srv := api.NewServer(cfg.Server.HTTP.Addr, engine, logger)
	if cfg.Server.HTTP.TLS.Enabled {
		srv.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}

	// Start WebSocket server if enabled
	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, logger)
		srv.SetWebSocketServer(wsServer)

		go func() {
			if err := wsServer.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err)
			}
		}()
	}

	// Start scheduled refresher if enabled
	var refresher *server.Refresher
	if cfg.Server.Refresh.Enabled {
		refresher = server.NewRefresher(engine, cfg.Server.Refresh.Symbols, cfg.Server.Refresh.Schedule, logger)
		if wsServer != nil {
			refresher.SetBroadcaster(wsServer)
		}
		if err := refresher.Start(); err != nil {
			return fmt.Errorf("failed to start refresher: %w", err)
		}
		// Warm the cache before the first scheduled run
		go refresher.RunNow()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if refresher != nil {
			refresher.Stop()
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if wsServer != nil {
			wsServer.Stop()
		}
	}()

	return srv.Start()
}

// oracleConfig maps the YAML configuration onto the engine configuration.
func oracleConfig(cfg *config.Config) oracle.Config {
	method := strings.ToLower(cfg.Oracle.Outlier.Method)
	return oracle.Config{
		MinSources:             cfg.Oracle.MinSources,
		CallTimeout:            cfg.Oracle.CallTimeout.ToDuration(),
		EnableOutlierDetection: method != string(oracle.OutlierMethodNone),
		OutlierMethod:          oracle.OutlierMethod(method),
		ZScoreThreshold:        cfg.Oracle.Outlier.ZScoreThreshold,
		EnableFallback:         cfg.Oracle.Fallback.Enabled,
		MaxStaleness:           cfg.Oracle.Fallback.MaxStaleness.ToDuration(),
		CacheTTL:               cfg.Oracle.Cache.TTL.ToDuration(),
		CacheMaxSize:           cfg.Oracle.Cache.MaxSize,
		FailureThreshold:       cfg.Oracle.Breaker.FailureThreshold,
		ResetTimeout:           cfg.Oracle.Breaker.ResetTimeout.ToDuration(),
		HalfOpenMaxCalls:       cfg.Oracle.Breaker.HalfOpenMaxCalls,
		TWAPWindow:             cfg.Oracle.TWAP.Window.ToDuration(),
		TWAPDecay:              cfg.Oracle.TWAP.Decay.ToDuration(),
	}
}
