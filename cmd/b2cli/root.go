package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudbin/b2sdk-go/internal/config"
)

var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagBucketID   string
	flagVerbose    bool
)

// newLogger builds a slog.Logger: text handler for an interactive
// terminal, JSON otherwise — automatic detection rather than an explicit
// flag, since this CLI is a thin example surface, not a full UX.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func loadConfig(log *slog.Logger) (*config.Config, error) {
	path := flagConfigPath
	if path == "" {
		env := config.ReadEnvOverrides()
		path = config.ResolveConfigPath(env)
	}

	return config.LoadOrDefault(path, log)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "b2cli",
		Short:         "Example CLI for the B2 transfer engine",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.toml (default: platform config dir)")
	cmd.PersistentFlags().StringVar(&flagBucketID, "bucket-id", "", "target bucket id")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

func requireBucketID() error {
	if flagBucketID == "" {
		return fmt.Errorf("--bucket-id is required")
	}

	return nil
}

func ctxOrBackground(cmd *cobra.Command) context.Context {
	if cmd.Context() != nil {
		return cmd.Context()
	}

	return context.Background()
}
