package markov

import (
	"regexp"
	"strings"
)

// DefaultTokenizer is the default implementation of the Tokenizer interface.
// It deletes decorative punctuation, then uses a regular expression to split
// the remaining text into word runs and single punctuation marks.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	wordRegex  *regexp.Regexp
	stripRegex *regexp.Regexp
	quotes     *strings.Replacer
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithWordRegex sets the regex used to extract tokens from cleaned text.
// Default: `[\p{L}\p{N}\-']+|[.,!?&;:]`
func WithWordRegex(wordRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.wordRegex = regexp.MustCompile(wordRegex)
	}
}

// WithStripRegex sets the regex matching decorative characters that are
// deleted before tokenization.
func WithStripRegex(stripRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.stripRegex = regexp.MustCompile(stripRegex)
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		// Letter/digit/hyphen/apostrophe runs OR a single allowed punctuation mark.
		wordRegex: regexp.MustCompile(`[\p{L}\p{N}\-']+|[.,!?&;:]`),
		// Slashes, brackets, currency, backticks, quotes and friends.
		stripRegex: regexp.MustCompile("[\\\\/#$%^{}=_`~()\"\\[\\]<>*|@“”‘«»€£¥]"),
		// A right single quote inside a word is an apostrophe.
		quotes: strings.NewReplacer("’", "'"),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Tokenize returns the word and punctuation tokens of text.
func (t *DefaultTokenizer) Tokenize(text string) []string {
	text = t.stripRegex.ReplaceAllString(t.quotes.Replace(text), "")
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	return t.wordRegex.FindAllString(text, -1)
}

// TrainingTokens tokenizes text and prefixes a synthetic "." so that the
// first real word is recorded as following a sentence boundary. Empty text
// yields an empty slice.
func TrainingTokens(t Tokenizer, text string) []string {
	tokens := t.Tokenize(text)
	if len(tokens) == 0 {
		return tokens
	}
	return append([]string{"."}, tokens...)
}
