package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/CTAG07/triadgen/pkg/markov"
	"github.com/CTAG07/triadgen/pkg/restore"
	"github.com/CTAG07/triadgen/pkg/textmodel"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		prompt       string
		count        int
		restoreWords bool
		stream       bool
		tokens       int
	)

	cmd := &cobra.Command{
		Use:   "generate <store>...",
		Short: "Generate text blocks from one or more stores",
		Long: `Generate text blocks. With several stores every block is drawn from one of
them at random. --restore drops the punctuation the stores produce and lets
the sentence restorer punctuate the words instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			models, err := openModels(args)
			defer closeModels(models)
			if err != nil {
				return err
			}

			if stream {
				if len(models) != 1 {
					return errors.New("--stream needs exactly one store")
				}
				return streamTokens(ctx, out, models[0], prompt, tokens)
			}

			model, err := combineModels(models)
			if err != nil {
				return err
			}
			if restoreWords {
				model = textmodel.NewRestoring(model, loadRestorer(), textmodel.WithRestoringConfig(activeCfg.Generate))
			}

			for i := 0; i < count; i++ {
				text, err := model.GetTextBlock(ctx, prompt)
				if err != nil {
					return err
				}
				if _, err = fmt.Fprintln(out, textmodel.Clamp(text, activeCfg.Generate.MaxLength)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Text to continue")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of blocks to generate")
	cmd.Flags().BoolVar(&restoreWords, "restore", false, "Punctuate the generated words with the sentence restorer")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print sentences as they are generated")
	cmd.Flags().IntVar(&tokens, "tokens", 0, "Tokens to stream, zero for one sentence")
	return cmd
}

func newWordCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "word <store>",
		Short: "Print the next words of a store's random walk, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := openModels(args)
			defer closeModels(models)
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				word, err := models[0].GetNextWord(cmd.Context())
				if err != nil {
					return err
				}
				if _, err = fmt.Fprintln(cmd.OutOrStdout(), word); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of words")
	return cmd
}

// openModels opens a MarkovModel for every store name. Models opened before
// an error are returned so the caller can close them.
func openModels(names []string) ([]*textmodel.MarkovModel, error) {
	models := make([]*textmodel.MarkovModel, 0, len(names))
	for _, name := range names {
		m, err := textmodel.OpenMarkov(storePath(name), archiveOptions(),
			textmodel.WithConfig(activeCfg.Generate),
			textmodel.WithLogger(logger),
		)
		if err != nil {
			return models, err
		}
		models = append(models, m)
	}
	return models, nil
}

func closeModels(models []*textmodel.MarkovModel) {
	for _, m := range models {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close model", "error", err)
		}
	}
}

// combineModels returns the only model, or an even mixture of several.
func combineModels(models []*textmodel.MarkovModel) (textmodel.TextModel, error) {
	if len(models) == 1 {
		return models[0], nil
	}
	weighted := make([]textmodel.Weighted, 0, len(models))
	for _, m := range models {
		weighted = append(weighted, textmodel.Weighted{Model: m, Weight: 1})
	}
	return textmodel.NewMixture(nil, weighted...)
}

func streamTokens(ctx context.Context, out io.Writer, model *textmodel.MarkovModel, prompt string, n int) error {
	gen, err := model.Generator(ctx)
	if err != nil {
		return err
	}
	st := markov.SeedState(markov.NewDefaultTokenizer().Tokenize(prompt))
	ch, err := gen.Stream(ctx, st, n)
	if err != nil {
		return err
	}

	var sentence []string
	flush := func() error {
		if len(sentence) == 0 {
			return nil
		}
		_, err := fmt.Fprintln(out, markov.Detokenize(sentence))
		sentence = sentence[:0]
		return err
	}
	for tok := range ch {
		sentence = append(sentence, tok.Text)
		if tok.EOC {
			if err = flush(); err != nil {
				return err
			}
		}
	}
	if err = flush(); err != nil {
		return err
	}
	return ctx.Err()
}

func loadRestorer() *restore.Restorer {
	return restore.Load(activeCfg.Restore.Files(),
		restore.WithSentenceLength(activeCfg.Restore.MeanLength, activeCfg.Restore.StdevLength),
		restore.WithLogger(logger),
	)
}

// readText joins args, or reads all of in when there are none.
func readText(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
