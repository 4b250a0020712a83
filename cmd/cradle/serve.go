package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/cradle"
	"github.com/loykin/cradle/internal/logger"
	dockerrt "github.com/loykin/cradle/internal/runtime/docker"
	fakert "github.com/loykin/cradle/internal/runtime/fake"
)

func runServeCommand(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}
	cfg, err := cradle.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log := logger.NewDaemonLogger(os.Stdout, "info", true)

	var rt cradle.Runtime
	switch cfg.Runtime {
	case "fake":
		rt = fakert.New()
	case "docker", "":
		rt, err = dockerrt.NewWithHost(cfg.DockerHost)
		if err != nil {
			return fmt.Errorf("failed to connect docker engine: %w", err)
		}
	default:
		return fmt.Errorf("unknown runtime %q (expected docker or fake)", cfg.Runtime)
	}
	defer func() { _ = rt.Close() }()

	mgr := cradle.New(rt)
	mgr.SetLogger(log)

	if cfg.Server.Metrics {
		if err := cradle.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}
	if cfg.Store != "" {
		if err := mgr.SetStoreDSN(cfg.Store); err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
	}
	if cfg.History.ClickHouseAddr != "" {
		err := mgr.SetClickHouseSink(cfg.History.ClickHouseAddr, cfg.History.Database,
			cfg.History.Username, cfg.History.Password, cfg.History.Table)
		if err != nil {
			return fmt.Errorf("failed to connect history sink: %w", err)
		}
	}

	specs, err := cfg.Specs()
	if err != nil {
		return fmt.Errorf("invalid container config: %w", err)
	}
	if err := mgr.ApplyConfig(specs); err != nil {
		log.Warn("failed to apply config", "error", err)
	}

	server, err := cradle.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, cfg.Server.Metrics, mgr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	log.Info("cradle daemon listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"containers", len(specs))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	mgr.Shutdown()
	return server.Close()
}
