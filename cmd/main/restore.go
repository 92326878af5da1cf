package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CTAG07/triadgen/pkg/restore"
	"github.com/spf13/cobra"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore [text]",
		Short: "Split unpunctuated text into punctuated sentences",
		Long: `Restore capitalization and punctuation in unpunctuated text. The text is
taken from the arguments, or from standard input when there are none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), loadRestorer().Restore(text))
			return err
		},
	}

	cmd.AddCommand(newRestoreLearnCmd())
	return cmd
}

func newRestoreLearnCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "learn <corpus>...",
		Short: "Build the restorer tables from punctuated text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := activeCfg.Restore.Files()
			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				files = restore.FilesIn(outDir)
			}

			corpus, closeAll, err := openCorpus(args)
			defer closeAll()
			if err != nil {
				return err
			}
			tables, err := restore.Learn(corpus, restore.NewProseTagger())
			if err != nil {
				return err
			}
			if err = tables.Save(files); err != nil {
				return err
			}

			logger.Info("Restorer tables written",
				"sequences", len(tables.Sequences),
				"tags", len(tables.Punctuation),
				"proper_nouns", len(tables.ProperNouns),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the tables to (default: the configured restore files)")
	return cmd
}

// openCorpus concatenates the named files, each ending on its own line.
func openCorpus(names []string) (io.Reader, func(), error) {
	var (
		files   []*os.File
		readers []io.Reader
	)
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, name := range names {
		f, err := os.Open(name)
		if err != nil {
			return nil, closeAll, fmt.Errorf("failed to open corpus: %w", err)
		}
		files = append(files, f)
		readers = append(readers, f, strings.NewReader("\n"))
	}
	return io.MultiReader(readers...), closeAll, nil
}
