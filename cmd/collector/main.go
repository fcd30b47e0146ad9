package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netpulsehq/collector/internal/config"
	"github.com/netpulsehq/collector/internal/logging"
	"github.com/netpulsehq/collector/internal/probe"
	"github.com/netpulsehq/collector/internal/runtime"
	"github.com/netpulsehq/collector/internal/server"
)

const shutdownGrace = 5 * time.Second

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "validate":
		err = validate(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func loadConfig(args []string, name string) (config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to collector configuration file")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	if *configPath != "" {
		return config.Load(*configPath)
	}
	return config.LoadFromEnv()
}

func validate(args []string) error {
	cfg, err := loadConfig(args, "validate")
	if err != nil {
		return err
	}
	if err := cfg.Validate(probe.Types()); err != nil {
		return err
	}
	fmt.Printf("config ok: %d probes, %d plugins\n", len(cfg.Probes), len(cfg.Plugins))
	return nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(args, "run")
	if err != nil {
		return err
	}
	if err := cfg.Validate(probe.Types()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger.Info("collector starting", "probes", len(cfg.Probes))

	rt, err := runtime.Build(cfg,
		runtime.WithLogger(logger),
		runtime.WithStopGrace(shutdownGrace),
		runtime.WithServerConfig(server.Config{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  time.Minute,
		}),
	)
	if err != nil {
		return fmt.Errorf("assemble runtime: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wait, err := rt.Start(runCtx)
	if err != nil {
		return fmt.Errorf("start runners: %w", err)
	}

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		<-groupCtx.Done()
		wait()
		return nil
	})

	if web := rt.WebServer(); web != nil {
		grp.Go(func() error {
			return serveWeb(groupCtx, web, logger)
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	logger.Info("collector stopped")
	return nil
}

func serveWeb(ctx context.Context, web *server.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("web app listening", "addr", web.Addr)
		errCh <- web.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := web.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func printUsage() {
	fmt.Println("NetPulse Collector CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  netpulse-collector run [--config /etc/netpulse/collector.yaml]")
	fmt.Println("  netpulse-collector validate [--config path]")
}
