package textmodel

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/CTAG07/triadgen/pkg/markov"
	"github.com/CTAG07/triadgen/pkg/restore"
)

// WordSource produces one word at a time.
type WordSource interface {
	GetNextWord(ctx context.Context) (string, error)
}

// RestoringOption configures a RestoringModel.
type RestoringOption func(*RestoringModel)

// WithRestoringConfig sets the block shape. PuncRequired is ignored since
// the restorer punctuates every block.
func WithRestoringConfig(cfg Config) RestoringOption {
	return func(m *RestoringModel) { m.cfg = cfg }
}

// WithBlockRand sets the random source for word and paragraph counts.
func WithBlockRand(rng *rand.Rand) RestoringOption {
	return func(m *RestoringModel) { m.rng = rng }
}

// RestoringModel draws plain words from a source and lets a Restorer split
// them into punctuated sentences. Punctuation tokens from the source are
// dropped.
type RestoringModel struct {
	words    WordSource
	restorer *restore.Restorer
	cfg      Config
	rng      *rand.Rand
}

// NewRestoring creates a model that restores the words drawn from words.
func NewRestoring(words WordSource, restorer *restore.Restorer, opts ...RestoringOption) *RestoringModel {
	m := &RestoringModel{
		words:    words,
		restorer: restorer,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetNextWord returns the next non-punctuation word of the source.
func (m *RestoringModel) GetNextWord(ctx context.Context) (string, error) {
	return m.nextWord(ctx)
}

// nextWord skips punctuation tokens.
func (m *RestoringModel) nextWord(ctx context.Context) (string, error) {
	for i := 0; i < markov.MaxTokensPerBlock; i++ {
		word, err := m.words.GetNextWord(ctx)
		if err != nil {
			return "", err
		}
		if !isPunctuation(word) {
			return word, nil
		}
	}
	return "", markov.ErrTokenCap
}

// GetTextBlock builds paragraphs of restored sentences. The source has no
// notion of a prompt, so prompt is only put back in front of the text.
func (m *RestoringModel) GetTextBlock(ctx context.Context, prompt string) (string, error) {
	paragraphs := max(1, gaussInt(m.rng, m.cfg.MeanParagraphs, m.cfg.StdevParagraphs))
	parts := make([]string, 0, paragraphs)

	for p := 0; p < paragraphs; p++ {
		n := max(1, abs(gaussInt(m.rng, m.cfg.MeanWords, m.cfg.StdevWords)))
		n = min(n, markov.MaxTokensPerBlock)
		words := make([]string, 0, n)
		for len(words) < n {
			word, err := m.nextWord(ctx)
			if err != nil {
				return "", fmt.Errorf("paragraph %d: %w", p, err)
			}
			words = append(words, word)
		}
		parts = append(parts, m.restorer.Restore(strings.Join(words, " ")))
	}

	text := strings.Join(parts, "\n\n")
	if m.cfg.RestorePrompt {
		text = markov.RestorePrompt(prompt, text)
	}
	return strings.TrimRightFunc(text, unicode.IsSpace), nil
}

func isPunctuation(token string) bool {
	if token == "" {
		return true
	}
	for _, r := range token {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
