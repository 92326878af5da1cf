package markov

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
)

// MaxTokensPerBlock bounds every sentence and paragraph so that a walk over a
// store with no reachable terminal still ends.
const MaxTokensPerBlock = 10000

// Chooser picks one token from a non-empty candidate set. It returns "" when
// no candidate can be drawn (for example, when every weight is zero).
type Chooser func(candidates []Candidate) string

// WeightedChoice returns a Chooser drawing a candidate with probability
// proportional to its weight. Candidates with a non-positive weight are never
// drawn. If r is nil the global source is used.
func WeightedChoice(r *rand.Rand) Chooser {
	return func(candidates []Candidate) string {
		total := 0
		for _, c := range candidates {
			if c.Weight > 0 {
				total += c.Weight
			}
		}
		if total == 0 {
			return ""
		}

		var randChoice int
		if r != nil {
			randChoice = r.IntN(total)
		} else {
			randChoice = rand.IntN(total)
		}
		for _, c := range candidates {
			if c.Weight <= 0 {
				continue
			}
			randChoice -= c.Weight
			if randChoice < 0 {
				return c.Token
			}
		}
		return ""
	}
}

// SamplingChooser returns a Chooser that reshapes the weights before drawing.
// topK > 0 keeps only the k heaviest candidates. A temperature of 1.0 is
// plain weighted choice; values above 1.0 flatten the distribution and values
// below sharpen it. A temperature of 0 or less always picks the heaviest
// candidate. If r is nil the global source is used.
func SamplingChooser(r *rand.Rand, temperature float64, topK int) Chooser {
	weighted := WeightedChoice(r)
	uniform := rand.Float64
	if r != nil {
		uniform = r.Float64
	}

	return func(candidates []Candidate) string {
		choices := make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Weight > 0 {
				choices = append(choices, c)
			}
		}
		if len(choices) == 0 {
			return ""
		}

		// topK filtering
		if topK > 0 && topK < len(choices) {
			slices.SortStableFunc(choices, func(a, b Candidate) int {
				return b.Weight - a.Weight
			})
			choices = choices[:topK]
		}

		if temperature <= 0 { // Deterministic
			best := choices[0]
			for _, c := range choices[1:] {
				if c.Weight > best.Weight {
					best = c
				}
			}
			return best.Token
		}
		if temperature == 1.0 {
			return weighted(choices)
		}

		// Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		epsilon := -1e9
		for i, c := range choices {
			lp := math.Log(float64(c.Weight)) / temperature
			logProbabilities[i] = lp
			if lp > epsilon {
				epsilon = lp
			}
		}
		var totalWeight float64
		weights := make([]float64, len(choices))
		for i, lp := range logProbabilities {
			w := math.Exp(lp - epsilon)
			weights[i] = w
			totalWeight += w
		}
		randChoice := uniform() * totalWeight
		for i, c := range choices {
			randChoice -= weights[i]
			if randChoice < 0 {
				return c.Token
			}
		}
		return choices[len(choices)-1].Token
	}
}

// Generator walks a CandidateSource one token at a time. It holds no walk
// state of its own: every call takes the caller's *State, so one Generator
// can serve concurrent sessions as long as each owns its State. A Chooser
// passed to WithChooser must itself be safe for concurrent use.
type Generator struct {
	source    CandidateSource
	tokenizer Tokenizer
	choose    Chooser
	rng       *rand.Rand
	logger    *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithChooser replaces the weighted random choice, e.g. with a deterministic
// one in tests.
func WithChooser(c Chooser) GeneratorOption {
	return func(g *Generator) { g.choose = c }
}

// WithRand sets the random source used for weighted choice and for sampling
// word and paragraph counts. Draws from r are serialized, so the Generator
// stays safe for concurrent sessions; r must not be used elsewhere while the
// Generator is in use.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		if r != nil {
			r = rand.New(&lockedSource{r: r})
		}
		g.rng = r
		g.choose = WeightedChoice(r)
	}
}

// lockedSource guards a *rand.Rand, which is not safe for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Uint64()
}

// WithPromptTokenizer sets the tokenizer used to split prompts.
// Default: NewDefaultTokenizer()
func WithPromptTokenizer(t Tokenizer) GeneratorOption {
	return func(g *Generator) { g.tokenizer = t }
}

// NewGenerator creates a Generator reading from source.
func NewGenerator(source CandidateSource, opts ...GeneratorOption) *Generator {
	g := &Generator{
		source:    source,
		tokenizer: NewDefaultTokenizer(),
		choose:    WeightedChoice(nil),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// FirstToken draws a token that starts a sentence. ErrEmptyModel is returned
// when the store has none.
func (g *Generator) FirstToken(ctx context.Context) (string, error) {
	candidates, err := g.source.FirstTokenCandidates(ctx)
	if err != nil {
		return "", err
	}
	if token := g.pick(candidates); token != "" {
		return token, nil
	}
	return "", ErrEmptyModel
}

// NextToken draws the token following st and advances st. Without context it
// starts a sentence. Otherwise it prefers the exact (first, second) match,
// then falls back to the successors of second alone, then restarts with a
// sentence-starting token. An empty level never fails on its own.
func (g *Generator) NextToken(ctx context.Context, st *State) (string, error) {
	var (
		token string
		err   error
	)
	if st.Second == "" {
		token, err = g.FirstToken(ctx)
	} else {
		token, err = g.continueFrom(ctx, st.First, st.Second)
	}
	if err != nil {
		return "", err
	}
	st.Advance(token)
	return token, nil
}

func (g *Generator) continueFrom(ctx context.Context, first, second string) (string, error) {
	if first != "" {
		candidates, err := g.source.NextTokenCandidates(ctx, first, second)
		if err != nil {
			return "", err
		}
		if token := g.pick(candidates); token != "" {
			return token, nil
		}
	}

	candidates, err := g.source.NextTokenCandidates(ctx, second, "")
	if err != nil {
		return "", err
	}
	if token := g.pick(candidates); token != "" {
		return token, nil
	}

	g.logger.DebugContext(ctx, "Dead end in chain, restarting sentence",
		slog.String("first", first),
		slog.String("second", second),
	)
	return g.FirstToken(ctx)
}

func (g *Generator) pick(candidates []Candidate) string {
	if len(candidates) == 0 {
		return ""
	}
	return g.choose(candidates)
}
