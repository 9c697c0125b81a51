// Command platformcheck verifies platform credentials and watches the
// subreddit comment stream for a short window.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/crowdchess/internal/config"
	"github.com/park285/crowdchess/internal/obslog"
	"github.com/park285/crowdchess/internal/platform"
	"github.com/park285/crowdchess/internal/platform/reddit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *cobra.Command {
	var (
		envFile  string
		postRef  string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:          "platformcheck",
		Short:        "Check Reddit credentials and print incoming comments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			cfg.DryRun = false
			if err := cfg.ValidatePlatform(); err != nil {
				return err
			}
			logger, err := obslog.New(obslog.Options{Level: cfg.LogLevel, Format: "console"})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client, err := reddit.New(cfg.Subreddit, cfg.Credentials(),
				reddit.WithTimeout(8*time.Second),
				reddit.WithPollInterval(cfg.PollInterval),
				reddit.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			return check(cmd.Context(), client, postRef, duration)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&postRef, "post", "", "post fullname (t3_...) whose top-level comments are listed")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to watch the comment stream")
	return cmd
}

func check(ctx context.Context, client platform.Client, postRef string, duration time.Duration) error {
	if postRef != "" {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		comments, err := client.PostComments(cctx, postRef)
		cancel()
		if err != nil {
			return fmt.Errorf("comments of %s: %w", postRef, err)
		}
		log.Printf("%s: %d top-level comments", postRef, len(comments))
		for _, c := range comments {
			fmt.Printf("  %s score=%d author=%s body=%q\n", c.ID, c.Score, c.Author, c.Body)
		}
	}

	if duration <= 0 {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	log.Printf("watching comments for %s", duration)
	err := client.StreamComments(sctx, func(c platform.Comment) error {
		fmt.Printf("comment post=%s id=%s from=%s text=%q\n", c.PostRef, c.ID, c.Author, c.Body)
		return nil
	})
	if err != nil && sctx.Err() == nil {
		return err
	}
	return nil
}
