package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tidemark-io/tidemark/admin"
	"github.com/tidemark-io/tidemark/cfg"
	"github.com/tidemark-io/tidemark/highwater"
	"github.com/tidemark-io/tidemark/sink"
	"github.com/tidemark-io/tidemark/store"
	"github.com/tidemark-io/tidemark/telemetry"
	"github.com/tidemark-io/tidemark/tracker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "tidemark.toml", "path to configuration file")
}

func main() {
	flag.Parse()

	config, err := cfg.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(config, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(config *cfg.Configuration, logger *zap.Logger) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults", zap.String("path", configPath))
	}

	nodeID := config.NodeName + "-" + uuid.NewString()
	logger.Info("starting", zap.String("node_id", nodeID), zap.String("db", config.DBPath))

	if config.Telemetry.Enabled {
		telemetry.Initialize()
	}

	events, err := store.Open(config.DBPath, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	trk := tracker.NewTracker(logger)
	detector := store.NewGapDetector(events, logger)
	agent := highwater.NewAgent(detector, trk, config.Settings(), logger)

	var pub sink.Publisher
	if config.NATS.Enabled {
		pub, err = sink.NewNatsPublisher(config.NATS.URL, config.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
	} else {
		pub = sink.NewLogPublisher(logger)
	}
	defer pub.Close()
	relay := sink.NewRelay(trk, pub, config.NATS.SubjectPrefix, nodeID, logger)
	relay.Start()

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := agent.Start(startCtx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	var adm *admin.Server
	if config.Admin.Enabled {
		adm = admin.NewServer(config.Admin.Bind, agent, trk, nodeID, logger)
		adm.Start()
		logger.Info("admin server listening", zap.String("bind", config.Admin.Bind))
	}

	stopchan := make(chan os.Signal, 1)
	signal.Notify(stopchan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-stopchan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if adm != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		adm.Stop(shutdownCtx)
		cancel()
	}
	agent.Stop()
	relay.Stop()
	return nil
}

func newLogger(lc cfg.LoggingConfiguration) (*zap.Logger, error) {
	var zc zap.Config
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}
