package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CTAG07/triadgen/pkg/markov"
	"github.com/CTAG07/triadgen/pkg/storefile"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	var (
		overwrite      bool
		removeUncommon int
		wrap           bool
	)

	cmd := &cobra.Command{
		Use:   "train <store> <file>...",
		Short: "Merge the lines of text files into a store",
		Long: `Merge every line of the given text files into the store, creating it if
needed. The store is decompressed for the session, vacuumed and compressed
again afterwards. If training fails the uncompressed store is kept next to
the archive and the next session resumes from it.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := markov.Add
			if overwrite {
				mode = markov.Overwrite
			}
			return updateStore(cmd.Context(), args[0], func(ctx context.Context, store *markov.Store) error {
				for _, name := range args[1:] {
					if err := trainFile(ctx, store, name, mode); err != nil {
						return err
					}
				}
				if removeUncommon > 0 {
					removed, err := store.PruneUncommon(ctx, removeUncommon)
					if err != nil {
						return fmt.Errorf("failed to remove uncommon triads: %w", err)
					}
					logger.Info("Removed uncommon triads", "threshold", removeUncommon, "rows", removed)
				}
				return nil
			}, markov.WithWraparound(wrap))
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace occurrence counts instead of adding to them")
	cmd.Flags().IntVarP(&removeUncommon, "remove-uncommon", "r", 0, "After training, delete triads whose first token heads this many rows or fewer")
	cmd.Flags().BoolVar(&wrap, "wrap", false, "Link the end of each line back to its start")
	return cmd
}

func trainFile(ctx context.Context, store *markov.Store, name string, mode markov.MergeMode) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open training file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	report, err := store.Train(ctx, f, mode)
	if err != nil {
		return fmt.Errorf("training from %s: %w", name, err)
	}
	logger.Info("Trained from file",
		"file", name,
		"lines", report.Lines,
		"merged", report.Merged,
		"skipped", report.Skipped,
	)
	return nil
}

// updateStore runs fn in a training session on the named store.
func updateStore(ctx context.Context, name string, fn func(context.Context, *markov.Store) error, opts ...markov.StoreOption) error {
	path := storePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	return storefile.Update(ctx, path, func(ctx context.Context, db *sql.DB) error {
		store, err := markov.NewStore(ctx, db, opts...)
		if err != nil {
			return err
		}
		defer store.Close()
		store.SetLogger(logger)
		return fn(ctx, store)
	}, archiveOptions()...)
}

// viewStore opens the named store read-only for the duration of fn.
func viewStore(ctx context.Context, name string, fn func(context.Context, *markov.Store) error) error {
	archive, err := storefile.Open(storePath(name), archiveOptions()...)
	if err != nil {
		return err
	}
	defer func(archive *storefile.Archive) {
		_ = archive.Close()
	}(archive)

	db, err := archive.DB(ctx)
	if err != nil {
		return err
	}
	store, err := markov.NewStore(ctx, db)
	if err != nil {
		return err
	}
	defer store.Close()
	store.SetLogger(logger)
	return fn(ctx, store)
}
