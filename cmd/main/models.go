package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/CTAG07/triadgen/pkg/markov"
	"github.com/CTAG07/triadgen/pkg/storefile"
	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and maintain stores",
	}

	cmd.AddCommand(newModelsListCmd())
	cmd.AddCommand(newModelsStatsCmd())
	cmd.AddCommand(newModelsExportCmd())
	cmd.AddCommand(newModelsImportCmd())
	cmd.AddCommand(newModelsPruneCmd())
	cmd.AddCommand(newModelsDeleteCmd())
	return cmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stores in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := os.ReadDir(activeCfg.ModelsDir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return fmt.Errorf("failed to read models directory: %w", err)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), storefile.Extension) {
					continue
				}
				info, err := e.Info()
				if err != nil {
					logger.Warn("Failed to stat store", "name", e.Name(), "error", err)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
					strings.TrimSuffix(e.Name(), storefile.Extension),
					humanize.Bytes(uint64(info.Size())),
					humanize.Time(info.ModTime()),
				)
			}
			return w.Flush()
		},
	}
}

func newModelsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <store>",
		Short: "Print the size and shape of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(storePath(args[0]))
			if err != nil {
				return fmt.Errorf("failed to stat store: %w", err)
			}
			return viewStore(cmd.Context(), args[0], func(ctx context.Context, store *markov.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return fmt.Errorf("failed to read stats: %w", err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintf(w, "Compressed size:\t%s\n", humanize.Bytes(uint64(info.Size())))
				_, _ = fmt.Fprintf(w, "Triads:\t%s\n", humanize.Comma(int64(stats.Triads)))
				_, _ = fmt.Fprintf(w, "Occurrences:\t%s\n", humanize.Comma(int64(stats.TotalOccurrences)))
				_, _ = fmt.Fprintf(w, "First tokens:\t%s\n", humanize.Comma(int64(stats.FirstTokens)))
				_, _ = fmt.Fprintf(w, "Sentence starters:\t%s\n", humanize.Comma(int64(stats.StartingTokens)))
				return w.Flush()
			})
		},
	}
}

func newModelsExportCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export <store>",
		Short: "Write every triad of a store as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return viewStore(cmd.Context(), args[0], func(ctx context.Context, store *markov.Store) error {
				if outFile == "" {
					return store.Export(ctx, cmd.OutOrStdout())
				}
				var buf bytes.Buffer
				if err := store.Export(ctx, &buf); err != nil {
					return err
				}
				if err := atomic.WriteFile(outFile, &buf); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write to this file instead of standard output")
	return cmd
}

func newModelsImportCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <store> <file>",
		Short: "Merge a JSON export into a store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := markov.Add
			if overwrite {
				mode = markov.Overwrite
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer func(f *os.File) {
				_ = f.Close()
			}(f)

			return updateStore(cmd.Context(), args[0], func(ctx context.Context, store *markov.Store) error {
				return store.Import(ctx, f, mode)
			})
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace occurrence counts instead of adding to them")
	return cmd
}

func newModelsPruneCmd() *cobra.Command {
	var threshold int

	cmd := &cobra.Command{
		Use:   "prune <store>",
		Short: "Delete triads whose first token heads too few rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateStore(cmd.Context(), args[0], func(ctx context.Context, store *markov.Store) error {
				removed, err := store.PruneUncommon(ctx, threshold)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s triads\n", humanize.Comma(removed))
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", 5, "Row count at or below which a first token is pruned")
	return cmd
}

func newModelsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <store>",
		Short: "Delete a store and any uncompressed copy left by training",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := storePath(args[0])
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to delete store: %w", err)
			}
			plain := storefile.PlainPath(path)
			if err := os.Remove(plain); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to delete uncompressed store", "path", plain, "error", err)
			}
			logger.Info("Store deleted", "path", filepath.Clean(path))
			return nil
		},
	}
}
