// Package restore turns a flat, unpunctuated word stream into prose. It
// segments the stream into sentences whose part-of-speech sequences are
// known to be valid, restores the casing of proper nouns and samples the
// punctuation that ends each sentence from POS-conditioned frequencies.
package restore

import (
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/CTAG07/triadgen/pkg/treebank"
)

const (
	DefaultSentenceMean  = 10.5
	DefaultSentenceStdev = 4.5
)

var (
	contractionRegex = regexp.MustCompile(`(?:\.{1,3}|[,:;!?])? ('s|'m|'re|'ll|'d|'ve|[Nn]'t)`)
	strayQuoteRegex  = regexp.MustCompile(` '(?:\.{1,3}|[,:;!?])`)
)

// Tagger splits text into tokens and assigns a part-of-speech tag to each.
type Tagger interface {
	Tokenize(text string) []string
	// Tag returns one tag per token.
	Tag(tokens []string) []string
}

// Option configures a Restorer.
type Option func(*Restorer)

// WithTagger sets the POS tagger. Default: ProseTagger.
func WithTagger(t Tagger) Option {
	return func(r *Restorer) { r.tagger = t }
}

// WithSentenceLength sets the Gaussian the target sentence length is drawn
// from. Default: mean 10.5, stdev 4.5.
func WithSentenceLength(mean, stdev float64) Option {
	return func(r *Restorer) {
		r.mean = mean
		r.stdev = stdev
	}
}

// WithRand sets the random source used for lengths and punctuation.
func WithRand(rng *rand.Rand) Option {
	return func(r *Restorer) { r.rng = rng }
}

// WithLogger sets the logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Restorer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Restorer restores sentences in unpunctuated text. It only reads its tables
// after construction; a Restorer with its own rand source must not be used
// from several goroutines.
type Restorer struct {
	sequences   map[string]struct{}
	punctuation map[string][]markWeight
	properNouns *regexp.Regexp
	corrections map[string]string

	tagger      Tagger
	mean, stdev float64
	rng         *rand.Rand
	logger      *slog.Logger
}

type markWeight struct {
	mark   string
	weight float64
}

// New builds a Restorer from already loaded tables.
func New(tables Tables, opts ...Option) *Restorer {
	r := &Restorer{
		sequences:   make(map[string]struct{}, len(tables.Sequences)),
		punctuation: make(map[string][]markWeight, len(tables.Punctuation)),
		corrections: make(map[string]string, len(tables.ProperNouns)),
		mean:        DefaultSentenceMean,
		stdev:       DefaultSentenceStdev,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tagger == nil {
		r.tagger = NewProseTagger()
	}

	for _, seq := range tables.Sequences {
		if len(seq) > 0 {
			r.sequences[sequenceKey(seq)] = struct{}{}
		}
	}

	for tag, dist := range tables.Punctuation {
		marks := make([]markWeight, 0, len(dist))
		for mark, p := range dist {
			if p > 0 {
				marks = append(marks, markWeight{mark: mark, weight: p})
			}
		}
		// Sorted so a seeded rand source gives repeatable output.
		slices.SortFunc(marks, func(a, b markWeight) int { return strings.Compare(a.mark, b.mark) })
		r.punctuation[tag] = marks
	}

	alternatives := make([]string, 0, len(tables.ProperNouns))
	for _, noun := range tables.ProperNouns {
		noun = strings.TrimSpace(noun)
		if noun == "" {
			continue
		}
		r.corrections[strings.ToLower(noun)] = noun
		alternatives = append(alternatives, regexp.QuoteMeta(noun))
	}
	if len(alternatives) > 0 {
		r.properNouns = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
	}

	r.logger.Debug("Restorer ready",
		slog.Int("sequences", len(r.sequences)),
		slog.Int("tags", len(r.punctuation)),
		slog.Int("proper_nouns", len(r.corrections)),
	)
	return r
}

// Load reads the tables named by files and builds a Restorer. Files that are
// missing or invalid are replaced by empty tables.
func Load(files Files, opts ...Option) *Restorer {
	r := &Restorer{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return New(LoadTables(files, r.logger), opts...)
}

// SetLogger sets the logger.
func (r *Restorer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Restore segments text into sentences and punctuates them. The result ends
// in '.', '!' or '?' unless text holds no tokens, in which case it is empty.
func (r *Restorer) Restore(text string) string {
	sentences := r.segment(text)
	if len(sentences) == 0 {
		return ""
	}
	return postFix(strings.Join(r.punctuate(sentences), " "))
}

// segment capitalizes text and splits it into sentences.
func (r *Restorer) segment(text string) []string {
	tokens := r.tagger.Tokenize(capitalize(r.restoreProperNouns(strings.TrimSpace(text))))
	if len(tokens) == 0 {
		return nil
	}
	tags := r.tagger.Tag(tokens)

	var sentences []string
	for len(tokens) > 0 {
		n := min(len(tokens), r.sentenceLength())
		for n > 1 && !r.knownSequence(tags[:n]) {
			n--
		}
		sentences = append(sentences, treebank.Detokenize(tokens[:n]))

		tokens = slices.Clone(tokens[n:])
		if len(tokens) == 0 {
			break
		}
		tokens[0] = capitalize(tokens[0])
		tags = r.tagger.Tag(tokens)
	}

	r.logger.Debug("Text segmented", slog.Int("sentences", len(sentences)))
	return sentences
}

// punctuate appends a sampled mark to every sentence. A sentence that follows
// a non-terminal mark continues the previous one and loses its capital.
func (r *Restorer) punctuate(sentences []string) []string {
	out := make([]string, 0, len(sentences))
	prev := "."
	for _, sentence := range sentences {
		mark := r.sampleMark(sentence)
		if isContinuation(prev) {
			sentence = r.restoreProperNouns(decapitalize(sentence))
		}
		out = append(out, sentence+mark)
		prev = mark
	}
	return out
}

func (r *Restorer) sampleMark(sentence string) string {
	tokens := r.tagger.Tokenize(sentence)
	if len(tokens) == 0 {
		return ""
	}
	tags := r.tagger.Tag(tokens)
	marks := r.punctuation[tags[len(tags)-1]]
	if len(marks) == 0 {
		return ""
	}

	var total float64
	for _, m := range marks {
		total += m.weight
	}
	pick := r.uniform() * total
	for _, m := range marks {
		pick -= m.weight
		if pick < 0 {
			return m.mark
		}
	}
	return marks[len(marks)-1].mark
}

func (r *Restorer) knownSequence(tags []string) bool {
	_, ok := r.sequences[sequenceKey(tags)]
	return ok
}

func (r *Restorer) sentenceLength() int {
	var n float64
	if r.rng != nil {
		n = r.rng.NormFloat64()
	} else {
		n = rand.NormFloat64()
	}
	return max(1, int(math.Round(n*r.stdev+r.mean)))
}

func (r *Restorer) uniform() float64 {
	if r.rng != nil {
		return r.rng.Float64()
	}
	return rand.Float64()
}

func (r *Restorer) restoreProperNouns(text string) string {
	if r.properNouns == nil {
		return text
	}
	return r.properNouns.ReplaceAllStringFunc(text, func(match string) string {
		if noun, ok := r.corrections[strings.ToLower(match)]; ok {
			return noun
		}
		return titleCase(match)
	})
}

// postFix joins contractions to the word before them, drops stray quote
// artifacts and makes sure the text ends like a sentence.
func postFix(text string) string {
	text = contractionRegex.ReplaceAllStringFunc(text, func(match string) string {
		return strings.ToLower(contractionRegex.FindStringSubmatch(match)[1])
	})
	text = strayQuoteRegex.ReplaceAllString(text, "")
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	if text == "" {
		return text
	}

	switch last, size := utf8.DecodeLastRuneInString(text); last {
	case '.', '!', '?':
		return text
	case ',', ';', ':':
		return text[:len(text)-size] + "."
	default:
		return text + "."
	}
}

func isContinuation(mark string) bool {
	switch mark {
	case "", ",", ";", ":":
		return true
	}
	return false
}

func sequenceKey(tags []string) string {
	return strings.Join(tags, ",")
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(first)) + s[size:]
}

func decapitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToLower(first)) + s[size:]
}

func titleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	start := true
	for _, c := range s {
		if unicode.IsLetter(c) {
			if start {
				c = unicode.ToUpper(c)
			} else {
				c = unicode.ToLower(c)
			}
			start = false
		} else {
			start = true
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
