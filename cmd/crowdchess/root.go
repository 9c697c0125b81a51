package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/crowdchess/internal/config"
	"github.com/park285/crowdchess/internal/ledger"
	"github.com/park285/crowdchess/internal/msgcat"
	"github.com/park285/crowdchess/internal/obslog"
	"github.com/park285/crowdchess/internal/orchestrator"
	"github.com/park285/crowdchess/internal/platform"
	"github.com/park285/crowdchess/internal/platform/reddit"
	"github.com/park285/crowdchess/internal/publish"
	"github.com/park285/crowdchess/internal/render"
	"github.com/park285/crowdchess/internal/replycache"
)

type rootFlags struct {
	envFile     string
	timeout     int
	utc         int
	database    string
	authMethod  string
	subreddit   string
	reset       bool
	logLevel    string
	dryRun      bool
	messagesDir string
}

func newRootCommand() *cobra.Command {
	return rootCommand(&rootFlags{})
}

func rootCommand(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crowdchess",
		Short:         "Run a chess game played by the votes of a subreddit",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fl.IntVarP(&f.timeout, "timeout", "t", 0, "attempt a move every SECONDS")
	fl.IntVarP(&f.utc, "utc", "u", 0, "attempt a move TIMES per day, starting from 00:00 UTC")
	fl.StringVarP(&f.database, "database", "d", "", "sqlite file or postgres:// URL for the ledger")
	fl.StringVarP(&f.authMethod, "auth-method", "a", "", "platform auth method (env|token)")
	fl.StringVarP(&f.subreddit, "subreddit", "s", "", "subreddit to post in")
	fl.BoolVarP(&f.reset, "reset", "r", false, "wipe the ledger before starting")
	fl.StringVarP(&f.logLevel, "log", "l", "", "log level (debug|info|warn|error)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "log posts and replies instead of sending them")
	fl.StringVar(&f.messagesDir, "messages-dir", "", "directory of YAML files overriding reply texts")
	return cmd
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, f *rootFlags, cfg *config.AppConfig) {
	changed := cmd.Flags().Changed
	if changed("timeout") {
		cfg.IntervalSeconds = f.timeout
	}
	if changed("utc") {
		cfg.PostsPerDay = f.utc
	}
	if changed("database") {
		cfg.Database = f.database
	}
	if changed("auth-method") {
		cfg.AuthMethod = strings.ToLower(f.authMethod)
	}
	if changed("subreddit") {
		cfg.Subreddit = strings.TrimPrefix(f.subreddit, "r/")
	}
	if changed("reset") {
		cfg.Reset = f.reset
	}
	if changed("log") {
		cfg.LogLevel = f.logLevel
	}
	if changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if changed("messages-dir") {
		cfg.MessagesDir = f.messagesDir
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	flush, err := obslog.Init(obslog.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer flush()
	logger := obslog.L()

	cadence, err := cfg.Cadence()
	if err != nil {
		return err
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	client, err := newPlatform(cfg, logger)
	if err != nil {
		return err
	}
	replies, err := replycache.New(ctx, cfg.RedisURL, replycache.DefaultTTL)
	if err != nil {
		return fmt.Errorf("reply cache: %w", err)
	}
	defer replies.Close()

	store, boot, err := ledger.Open(ctx, ledger.Options{Location: cfg.Database, Reset: cfg.Reset, Logger: logger})
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Platform:  client,
		Publisher: publish.New(client, newRenderer(cfg), catalog, logger),
		Catalog:   catalog,
		Replies:   replies,
		Cadence:   cadence,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if boot == ledger.NeedsInitialPost {
		if _, err := engine.SeedInitialPost(ctx); err != nil {
			return err
		}
	}

	logger.Info("crowdchess_starting",
		zap.String("subreddit", cfg.Subreddit),
		zap.String("cadence", cadence.String()),
		zap.Bool("dry_run", cfg.DryRun),
	)
	return engine.Run(ctx)
}

func newPlatform(cfg *config.AppConfig, logger *zap.Logger) (platform.Client, error) {
	if cfg.DryRun {
		return platform.NewDryRun(logger), nil
	}
	return reddit.New(cfg.Subreddit, cfg.Credentials(),
		reddit.WithPollInterval(cfg.PollInterval),
		reddit.WithLogger(logger),
	)
}

func newRenderer(cfg *config.AppConfig) *render.Renderer {
	if cfg.PiecesDir == "" {
		return render.New()
	}
	return render.New(render.WithPieces(os.DirFS(cfg.PiecesDir)))
}
