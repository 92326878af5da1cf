package markov

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/CTAG07/triadgen/pkg/treebank"
)

// State is the trailing context of a walk: the two most recent tokens. An
// empty string means the position is absent. A State belongs to one walk and
// must not be shared between goroutines.
type State struct {
	First  string
	Second string
}

// SeedState builds a State from the last two tokens of a sequence. A single
// token becomes Second, so the next step is keyed on that word alone. An
// empty sequence yields the empty State, which starts a new sentence.
func SeedState(tokens []string) State {
	switch n := len(tokens); n {
	case 0:
		return State{}
	case 1:
		return State{Second: tokens[0]}
	default:
		return State{First: tokens[n-2], Second: tokens[n-1]}
	}
}

// Advance shifts the window: First takes Second and Second takes token.
func (s *State) Advance(token string) {
	s.First, s.Second = s.Second, token
}

// Reset clears the State so the next token starts a sentence.
func (s *State) Reset() {
	*s = State{}
}

// blockOptions Is used by TextBlock and Block to configure default options.
type blockOptions struct {
	meanWords       float64
	stdevWords      float64
	meanParagraphs  float64
	stdevParagraphs float64
	puncRequired    bool
	restorePrompt   bool
}

// BlockOption is a function that configures text block generation.
type BlockOption func(*blockOptions)

// WithWordCount sets the Gaussian the per-paragraph word count is drawn from.
// Default: mean 20, stdev 30.
func WithWordCount(mean, stdev float64) BlockOption {
	return func(o *blockOptions) {
		o.meanWords = mean
		o.stdevWords = stdev
	}
}

// WithParagraphCount sets the Gaussian the paragraph count is drawn from.
// Default: mean 1, stdev 0.
func WithParagraphCount(mean, stdev float64) BlockOption {
	return func(o *blockOptions) {
		o.meanParagraphs = mean
		o.stdevParagraphs = stdev
	}
}

// WithPunctuationRequired specifies whether each paragraph keeps going past
// its word count until it reaches terminal punctuation. Default: true.
func WithPunctuationRequired(required bool) BlockOption {
	return func(o *blockOptions) { o.puncRequired = required }
}

// WithPromptRestore specifies whether the prompt is prepended to the
// generated continuation. Default: true.
func WithPromptRestore(restore bool) BlockOption {
	return func(o *blockOptions) { o.restorePrompt = restore }
}

func defaultBlockOptions(opts []BlockOption) *blockOptions {
	options := &blockOptions{
		meanWords:       20,
		stdevWords:      30,
		meanParagraphs:  1,
		stdevParagraphs: 0,
		puncRequired:    true,
		restorePrompt:   true,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Sentence draws tokens until one is terminal punctuation. ErrTokenCap is
// returned, along with the tokens drawn so far, if MaxTokensPerBlock tokens
// are drawn without reaching one.
func (g *Generator) Sentence(ctx context.Context, st *State) ([]string, error) {
	var tokens []string
	for len(tokens) < MaxTokensPerBlock {
		token, err := g.NextToken(ctx, st)
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, token)
		if IsTerminal(token) {
			return tokens, nil
		}
	}
	return tokens, ErrTokenCap
}

// Paragraph draws words tokens, then, if puncRequired, keeps drawing until
// the last token is terminal punctuation. The total is capped at
// MaxTokensPerBlock; reaching the cap while punctuation is still required
// returns ErrTokenCap.
func (g *Generator) Paragraph(ctx context.Context, st *State, words int, puncRequired bool) ([]string, error) {
	words = min(max(words, 1), MaxTokensPerBlock)

	tokens := make([]string, 0, words)
	for len(tokens) < words {
		token, err := g.NextToken(ctx, st)
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, token)
	}

	for puncRequired && !IsTerminal(tokens[len(tokens)-1]) {
		if len(tokens) >= MaxTokensPerBlock {
			return tokens, ErrTokenCap
		}
		token, err := g.NextToken(ctx, st)
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// TextBlock generates a block of one or more paragraphs from a fresh State.
// The first paragraph continues prompt, and every following paragraph
// continues the one before it. Paragraphs are joined by a blank line.
func (g *Generator) TextBlock(ctx context.Context, prompt string, opts ...BlockOption) (string, error) {
	var st State
	return g.Block(ctx, &st, prompt, opts...)
}

// Block is TextBlock over a caller-owned State, which is left at the end of
// the block so that later calls to NextToken continue from it.
func (g *Generator) Block(ctx context.Context, st *State, prompt string, opts ...BlockOption) (string, error) {
	options := defaultBlockOptions(opts)

	paragraphs := max(1, g.gaussInt(options.meanParagraphs, options.stdevParagraphs))
	parts := make([]string, 0, paragraphs)

	seed := prompt
	for i := 0; i < paragraphs; i++ {
		*st = SeedState(g.tokenizer.Tokenize(seed))
		words := max(1, abs(g.gaussInt(options.meanWords, options.stdevWords)))

		tokens, err := g.Paragraph(ctx, st, words, options.puncRequired)
		if err != nil {
			return "", fmt.Errorf("paragraph %d: %w", i, err)
		}
		seed = Detokenize(tokens)
		parts = append(parts, seed)
	}

	g.logger.DebugContext(ctx, "Text block generated",
		slog.Int("paragraphs", paragraphs),
		slog.Bool("prompted", prompt != ""),
	)

	text := strings.Join(parts, "\n\n")
	if options.restorePrompt {
		text = RestorePrompt(prompt, text)
	}
	return strings.TrimRightFunc(text, unicode.IsSpace), nil
}

// gaussInt draws round(N(mean, stdev)).
func (g *Generator) gaussInt(mean, stdev float64) int {
	var n float64
	if g.rng != nil {
		n = g.rng.NormFloat64()
	} else {
		n = rand.NormFloat64()
	}
	return int(math.Round(n*stdev + mean))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Detokenize joins tokens into prose with treebank rules, then closes the
// gap the generic rules leave before a period.
func Detokenize(tokens []string) string {
	return strings.ReplaceAll(treebank.Detokenize(tokens), " .", ".")
}

// RestorePrompt prepends prompt to text. A space separates them unless the
// prompt ends in whitespace or an opening bracket or quote, or the text
// starts with whitespace or closing punctuation.
func RestorePrompt(prompt, text string) string {
	if prompt == "" {
		return text
	}
	if text == "" {
		return prompt
	}

	last, _ := utf8.DecodeLastRuneInString(prompt)
	first, _ := utf8.DecodeRuneInString(text)
	if unicode.IsSpace(last) || strings.ContainsRune(openingMarks, last) ||
		unicode.IsSpace(first) || strings.ContainsRune(closingMarks, first) {
		return prompt + text
	}
	return prompt + " " + text
}

const (
	openingMarks = "([{<\"'“‘«"
	closingMarks = ".,!?;:)]}>'’”»%"
)
