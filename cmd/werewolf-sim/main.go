package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"go.uber.org/zap"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"werewolf-bdd/applog"
	"werewolf-bdd/config"
	"werewolf-bdd/gamesim"
	"werewolf-bdd/metrics"
	"werewolf-bdd/util"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.NewSimConfigFromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to parse command line arguments: %v\n", err)
		return
	}

	err = applog.Initialize("sim-"+time.Now().UTC().Format("20060102-150405"), cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Printf("Failed to initialize app logger: %v\n", err)
	}

	defer applog.Shutdown()
	defer util.WrapAppContextCancelExitMessage(ctx, "Game simulator")

	if err = cfg.Validate(); err != nil {
		applog.Error("Failed to validate command line arguments", zap.Error(err))
		return
	}

	applog.LogStartupInfo(cfg)

	var opts []gamesim.Option
	if cfg.NameHeader != "" {
		opts = append(opts, gamesim.WithNameHeader(cfg.NameHeader))
	}
	if cfg.Seed != 0 {
		opts = append(opts, gamesim.WithRand(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, gamesim.NewServer(opts...))

	if cfg.MetricsAddr != "" {
		metricsServer := metrics.StartHTTP(cfg.MetricsAddr)
		defer func(srv *http.Server) {
			_ = srv.Close()
		}(metricsServer)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		applog.Info("Simulator listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("path", cfg.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("Simulator failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		applog.Warn("Simulator shutdown incomplete", zap.Error(err))
	}
}
