package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/CTAG07/triadgen/pkg/storefile"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	cfgFile   string
	activeCfg = DefaultConfig()
	logger    = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func NewRootCmd() *cobra.Command {
	defaults := DefaultConfig()

	cmd := &cobra.Command{
		Use:           "triadgen",
		Short:         "Train triad Markov stores and generate text from them",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := Load(LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: ParseLogLevel(loaded.LogLevel)}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (json|yaml|toml)")
	RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newWordCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// storePath resolves a store argument. A bare name refers to
// <models_dir>/<name>.db.gz; anything that looks like a path is used as one.
func storePath(name string) string {
	switch {
	case strings.HasSuffix(name, storefile.Extension):
		return name
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator):
		return name + storefile.Extension
	default:
		return filepath.Join(activeCfg.ModelsDir, name+storefile.Extension)
	}
}

func archiveOptions() []storefile.Option {
	opts := []storefile.Option{storefile.WithLogger(logger)}
	if activeCfg.TempDir != "" {
		opts = append(opts, storefile.WithTempDir(activeCfg.TempDir))
	}
	return opts
}

func main() {
	// Cancelling on a signal lets every command return through its deferred
	// Close calls, which remove the decompressed working copies.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.Error("Command failed", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
