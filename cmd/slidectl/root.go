package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/slidenotes-api/internal/bootstrap"
	"github.com/maauso/slidenotes-api/internal/config"
)

var (
	// Flags
	dirFlag      string
	maxBytesFlag int64
	idleFlag     time.Duration
	verboseFlag  bool

	// Initialized by initializeApp
	lc *bootstrap.Lifecycle
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slidectl",
	Short: "Inspect and maintain the slide asset store",
	Long: `slidectl reports usage of the slide asset store and evicts idle assets.

Settings default to UPLOADS_DIR, MAX_STORAGE_BYTES and IDLE_THRESHOLD
(a .env file in the working directory is honoured); flags override them.`,
	PersistentPreRunE: initializeApp,
	SilenceUsage:      true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(filesCmd)

	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "asset store directory (default $UPLOADS_DIR)")
	rootCmd.PersistentFlags().Int64Var(&maxBytesFlag, "max-bytes", 0, "storage quota in bytes (default $MAX_STORAGE_BYTES)")
	rootCmd.PersistentFlags().DurationVar(&idleFlag, "idle", 0, "idle threshold (default $IDLE_THRESHOLD)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log every file considered")
}

// initializeApp builds the lifecycle components from env and flags.
func initializeApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadStorage()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.UploadsDir = dirFlag
	}
	if flags.Changed("max-bytes") {
		if maxBytesFlag <= 0 {
			return fmt.Errorf("--max-bytes must be positive")
		}
		cfg.MaxStorageBytes = maxBytesFlag
	}
	if flags.Changed("idle") {
		if idleFlag <= 0 {
			return fmt.Errorf("--idle must be positive")
		}
		cfg.IdleThreshold = idleFlag
	}

	lc, err = bootstrap.NewLifecycle(cfg.UploadsDir, cfg.MaxStorageBytes, cfg.IdleThreshold, newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	return nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// getContext returns a context for operations
func getContext() context.Context {
	return context.Background()
}
