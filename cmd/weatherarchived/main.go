// weatherarchived is the weather archive storage daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage"
	"github.com/vejrdk/weatherarchive/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	activeDir := flag.String("active-dir", "", "active partition root (overrides config)")
	archiveDir := flag.String("archive-dir", "", "archived partition root (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	debug := flag.Bool("debug", false, "debug logging")
	jsonLog := flag.Bool("json-log", false, "JSON log output")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLog)
	log := logging.Component("main")

	// Optional .env file supplies WEATHER_ACTIVE_DIR / WEATHER_ARCHIVE_DIR.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("load .env", "error", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("no config file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *activeDir != "" {
		cfg.ActiveDir = *activeDir
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log.Info("weatherarchived starting", "version", Version)

	ctx := context.Background()
	store, err := storage.New(ctx, cfg)
	if err != nil {
		log.Error("create storage", "error", err)
		os.Exit(1)
	}

	if err := store.Start(); err != nil {
		log.Error("start storage", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	if err := store.Stop(); err != nil {
		log.Error("stop storage", "error", err)
		os.Exit(1)
	}
}
