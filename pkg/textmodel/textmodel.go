// Package textmodel exposes text generators behind one small interface. A
// MarkovModel generates from a compressed triad store, a RestoringModel
// punctuates the words of another model, and a Mixture picks between models
// at random.
package textmodel

import (
	"context"
	"math"
	"math/rand/v2"
	"unicode"
	"unicode/utf8"

	"github.com/CTAG07/triadgen/pkg/markov"
)

// TextModel generates words and blocks of text.
type TextModel interface {
	// GetNextWord returns the next word from the model's current state.
	GetNextWord(ctx context.Context) (string, error)
	// GetTextBlock returns a block of text continuing prompt. An empty prompt
	// starts from an empty state.
	GetTextBlock(ctx context.Context, prompt string) (string, error)
}

// Config holds the block shape shared by all models.
type Config struct {
	MeanWords       float64 `mapstructure:"mean_words" json:"mean_words"`
	StdevWords      float64 `mapstructure:"stdev_words" json:"stdev_words"`
	MeanParagraphs  float64 `mapstructure:"mean_paragraphs" json:"mean_paragraphs"`
	StdevParagraphs float64 `mapstructure:"stdev_paragraphs" json:"stdev_paragraphs"`
	PuncRequired    bool    `mapstructure:"punc_required" json:"punc_required"`
	RestorePrompt   bool    `mapstructure:"restore_prompt" json:"restore_prompt"`
	// MaxLength caps the words of a block when applied with Clamp. Zero or
	// less means no cap.
	MaxLength int `mapstructure:"max_length" json:"max_length"`
}

// DefaultConfig returns the default block shape.
func DefaultConfig() Config {
	return Config{
		MeanWords:       20,
		StdevWords:      30,
		MeanParagraphs:  1,
		StdevParagraphs: 0,
		PuncRequired:    true,
		RestorePrompt:   true,
		MaxLength:       -1,
	}
}

func (c Config) blockOptions() []markov.BlockOption {
	return []markov.BlockOption{
		markov.WithWordCount(c.MeanWords, c.StdevWords),
		markov.WithParagraphCount(c.MeanParagraphs, c.StdevParagraphs),
		markov.WithPunctuationRequired(c.PuncRequired),
		markov.WithPromptRestore(c.RestorePrompt),
	}
}

// Clamp cuts text after its first maxLength words. Whitespace inside the
// kept part is preserved. A maxLength of zero or less returns text as is.
func Clamp(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			if words == maxLength {
				return trimRightSpace(text[:i])
			}
			words++
			inWord = true
		}
	}
	return text
}

func trimRightSpace(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if !unicode.IsSpace(r) {
			break
		}
		s = s[:len(s)-size]
	}
	return s
}

// gaussInt draws round(N(mean, stdev)) from rng, or from the global source
// when rng is nil.
func gaussInt(rng *rand.Rand, mean, stdev float64) int {
	var n float64
	if rng != nil {
		n = rng.NormFloat64()
	} else {
		n = rand.NormFloat64()
	}
	return int(math.Round(n*stdev + mean))
}
