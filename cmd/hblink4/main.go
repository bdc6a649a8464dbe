package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hblink4/hblink4/internal/config"
	"github.com/hblink4/hblink4/internal/eventsink"
	"github.com/hblink4/hblink4/internal/logger"
	"github.com/hblink4/hblink4/internal/metrics"
	"github.com/hblink4/hblink4/internal/server"
	"github.com/hblink4/hblink4/internal/usercache"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

// exit codes, per the CLI's error taxonomy: 0 normal shutdown, 1
// configuration error, 2 socket bind failure.
const (
	exitOK         = 0
	exitConfigErr  = 1
	exitBindErr    = 2
)

func main() {
	validateOnly := false
	showVersion := false

	root := &cobra.Command{
		Use:           "hblink4 <config.json>",
		Short:         "HBlink4 DMR HomeBrew protocol server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			return run(args[0], validateOnly)
		},
	}
	root.Flags().BoolVar(&validateOnly, "validate", false, "validate the configuration file and exit")
	root.Flags().BoolVar(&showVersion, "version", false, "show version information and exit")

	if err := root.Execute(); err != nil {
		if ce, ok := err.(*exitError); ok {
			if ce.err != nil {
				fmt.Fprintln(os.Stderr, ce.err)
			}
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigErr)
	}
}

func printVersion() {
	fmt.Printf("hblink4 %s\n", version)
	fmt.Printf("commit: %s\n", gitCommit)
	fmt.Printf("built:  %s\n", buildTime)
}

// exitError carries a specific process exit code out of RunE, since cobra
// itself always maps a non-nil error to a generic failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func run(configPath string, validateOnly bool) error {
	log := logger.Default()
	defer log.Sync()

	log.Info("loading configuration", logger.String("path", configPath))
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("configuration error", logger.Error(err))
		return &exitError{code: exitConfigErr, err: err}
	}

	if validateOnly {
		log.Info("configuration is valid")
		return nil
	}

	log = mustLogger(log)

	var cache *usercache.Cache
	if cfg.Global.UserCache.Path != "" {
		cache = usercache.New(userCacheTTL(cfg))
		n, err := cache.LoadCSV(cfg.Global.UserCache.Path)
		if err != nil {
			log.Warn("user cache load failed, continuing without it", logger.Error(err))
		} else {
			log.Info("user cache loaded", logger.Int("entries", n))
		}
	}

	var sink *eventsink.Sink
	if cfg.Dashboard.Transport != "" {
		sink, err = eventsink.Dial(eventsink.Config{
			Transport:  cfg.Dashboard.Transport,
			UnixSocket: cfg.Dashboard.UnixSocket,
			Host:       cfg.Dashboard.HostIPv4,
			Port:       cfg.Dashboard.Port,
		}, log.WithComponent("eventsink"))
		if err != nil {
			log.Warn("event sink disabled", logger.Error(err))
			sink = nil
		}
	}

	coll := metrics.NewCollector()

	srv := server.New(cfg, log, sink, coll, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		log.Error("server exited with error", logger.Error(err))
		return &exitError{code: exitBindErr, err: err}
	}

	log.Info("hblink4 stopped")
	return nil
}

// mustLogger re-initializes the logger now that configuration is available.
// HBlink4's JSON schema has no dedicated logging section (§6), so this keeps
// the teacher's two-phase console-then-configured pattern with the project
// defaults rather than inventing an undocumented config key.
func mustLogger(fallback *logger.Logger) *logger.Logger {
	l, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		return fallback
	}
	return l
}

func userCacheTTL(cfg *config.Config) time.Duration {
	if cfg.Global.UserCache.Timeout <= 0 {
		return 600 * time.Second
	}
	return time.Duration(cfg.Global.UserCache.Timeout) * time.Second
}
