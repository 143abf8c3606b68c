package main

import (
	"context"
	"flag"
	"fmt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"werewolf-bdd/applog"
	"werewolf-bdd/config"
	"werewolf-bdd/metrics"
	"werewolf-bdd/report"
	"werewolf-bdd/scenario"
	"werewolf-bdd/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.NewConfigFromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to parse command line arguments: %v\n", err)
		return 2
	}

	runID := time.Now().UTC().Format("20060102-150405")
	err = applog.Initialize(runID, cfg.LogLevel, cfg.LogPath)
	if err != nil {
		fmt.Printf("Failed to initialize app logger: %v\n", err)
	}

	defer applog.Shutdown()
	defer util.WrapAppContextCancelExitMessage(ctx, "Scenario driver")

	if err = cfg.Validate(); err != nil {
		applog.Error("Failed to validate command line arguments", zap.Error(err))
		return 2
	}

	applog.LogStartupInfo(cfg)

	if cfg.MetricsAddr != "" {
		metricsServer := metrics.StartHTTP(cfg.MetricsAddr)
		defer func(srv *http.Server) {
			_ = srv.Close()
		}(metricsServer)
	}

	s := scenario.NewScenarioContext(ctx, cfg)
	rep := report.New(runID, cfg.SocketURL)

	for _, sc := range suite() {
		if !cfg.Selected(sc.Name) {
			applog.Debug("Skipping scenario", zap.String("scenario", sc.Name))
			continue
		}
		if err = scenario.RunScenario(s, sc); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Scenario '%s' failed: %v\n", sc.Name, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	for _, result := range s.Results() {
		rep.Add(result)
	}
	rep.Finish()

	if err = publish(ctx, cfg, rep); err != nil {
		applog.Error("Failed to publish report", zap.Error(err))
	}

	applog.Info("Run finished",
		zap.Int("scenarios", len(rep.Scenarios)),
		zap.Int("failed", rep.Failed()),
	)
	if !rep.Passed() {
		return 1
	}
	return 0
}

func publish(ctx context.Context, cfg *config.Config, rep *report.Report) error {
	var errs error
	if cfg.ReportPath != "" {
		if err := report.WriteFile(cfg.ReportPath, rep); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			applog.Info("Report written", zap.String("path", cfg.ReportPath))
		}
	}

	if cfg.ReportURL != "" {
		uploader := report.NewUploader(cfg.ReportURL)
		defer func(u *report.Uploader) {
			_ = u.Close()
		}(uploader)

		if err := uploader.Upload(ctx, rep); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
