// Command quoter is the engine's long-running daemon: it loads
// configuration, wires every component via internal/orchestrator, and
// runs the cooperative event loop until an interrupt or unrecoverable
// halt. Flag parsing and signal handling follow the reference bot's
// cmd/bot/main.go layering (flags → config.Load → run until SIGINT/
// SIGTERM → bounded graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/betbot/aquoter/internal/config"
	"github.com/betbot/aquoter/internal/obslog"
	"github.com/betbot/aquoter/internal/orchestrator"
	"github.com/betbot/aquoter/pkg/sigchan"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML config file")
	envPath := flag.String("env", ".env", "path to a .env file with secret overrides")
	dryRun := flag.Bool("dry-run", false, "compute quotes but never place, cancel, or redeem")
	detectOnly := flag.Bool("detect-only", false, "run the quote cycle only; equivalent to --dry-run for placements")
	assets := flag.String("assets", "", "comma-separated asset id list, overrides config's assets")
	logLevel := flag.String("log-level", "", "overrides config's log_level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quoter: config error: %v\n", err)
		return 1
	}

	effectiveDryRun := *dryRun || *detectOnly
	cfg = cfg.ApplyFlags(&effectiveDryRun, detectOnly, assets, logLevel)

	if err := obslog.Init(obslog.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "quoter: log init error: %v\n", err)
		return 1
	}

	if *detectOnly {
		obslog.Infof("detect-only mode: quote cycle runs, no placements/cancels/redemptions will be sent")
	}
	obslog.Infof("starting quoter for assets=%s dry_run=%v", strings.Join(cfg.Assets, ","), cfg.DryRun)

	orch, err := orchestrator.New(cfg)
	if err != nil {
		obslog.Errorf("startup failed: %v", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := sigchan.New(1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		stop.Emit()
	}()
	go func() {
		<-stop.C()
		obslog.Infof("shutdown signal received")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil {
		obslog.Errorf("engine exited with error: %v", err)
		return 2
	}
	obslog.Infof("quoter stopped cleanly")
	return 0
}
