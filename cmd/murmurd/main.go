// Command murmurd runs the murmur transcription server: it accepts
// encrypted task containers over HTTP, processes them one at a time with
// whisper, and retains subtitle results for pickup.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/logging"
	"murmur/internal/pool"
	"murmur/internal/services/whisper"
	"murmur/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// Directories must exist before the log file and result store open.
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg, "murmurd.log")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := pool.OpenResultStore(cfg.Paths.ResultDir)
	if err != nil {
		logger.Error("open result store", logging.Error(err))
		os.Exit(1)
	}

	retention := time.Duration(cfg.Pool.ResultRetentionHours) * time.Hour
	taskPool := pool.New(store, cfg.Pool.MaxSize, retention, logger)

	transcriber := whisper.NewService(cfg.Whisper.Binary)
	loop := worker.New(taskPool, transcriber, worker.Options{
		TempDir:            cfg.Paths.TempDir,
		DefaultModel:       cfg.Whisper.Model,
		PollInterval:       time.Duration(cfg.Worker.PollInterval) * time.Second,
		ErrorRetryInterval: time.Duration(cfg.Worker.ErrorRetryInterval) * time.Second,
	}, logger)

	d, err := daemon.New(cfg, store, taskPool, loop, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	d.Stop()
	logger.Info("murmurd shut down")
}
