package markov

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// loopSource never offers terminal punctuation.
type loopSource struct{}

func (loopSource) FirstTokenCandidates(context.Context) ([]Candidate, error) {
	return []Candidate{{"la", 1}}, nil
}

func (loopSource) NextTokenCandidates(context.Context, string, string) ([]Candidate, error) {
	return []Candidate{{"la", 1}}, nil
}

func setupTestGenerator(t *testing.T, lines ...string) (context.Context, *Generator) {
	ctx, s := setupTestStoreWithTraining(t, lines...)
	return ctx, NewGenerator(s, WithChooser(smallestChooser))
}

func TestFirstToken(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	token, err := g.FirstToken(ctx)
	if err != nil {
		t.Fatalf("FirstToken failed: %v", err)
	}
	if token != "This" {
		t.Errorf("FirstToken() = %q, want %q", token, "This")
	}
}

func TestNextTokenWalk(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	var st State
	var got []string
	for i := 0; i < 8; i++ {
		token, err := g.NextToken(ctx, &st)
		if err != nil {
			t.Fatalf("NextToken failed at step %d: %v", i, err)
		}
		got = append(got, token)
	}

	want := []string{"This", "is", "a", "unit", "test", ".", "Writing", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("walk = %q, want %q", got, want)
	}
	if st != (State{First: "Writing", Second: "a"}) {
		t.Errorf("final state = %+v", st)
	}
}

func TestNextTokenFallback(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText, anotherUnitText)

	testCases := []struct {
		name     string
		state    State
		expected string
	}{
		{"exact match", State{First: "This", Second: "is"}, "a"},
		{"unigram after unknown pair", State{First: "zebra", Second: "unit"}, "test"},
		{"unigram on single token", State{Second: "another"}, "unit"},
		{"restart on unknown word", State{First: "zebra", Second: "yak"}, "This"},
		{"empty state starts a sentence", State{}, "This"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.state
			token, err := g.NextToken(ctx, &st)
			if err != nil {
				t.Fatalf("NextToken failed: %v", err)
			}
			if token != tc.expected {
				t.Errorf("NextToken(%+v) = %q, want %q", tc.state, token, tc.expected)
			}
			if st.First != tc.state.Second || st.Second != token {
				t.Errorf("state not advanced: %+v", st)
			}
		})
	}
}

func TestGenerateEmptyModel(t *testing.T) {
	_, s := setupTestStore(t)
	g := NewGenerator(s)
	ctx := context.Background()

	if _, err := g.FirstToken(ctx); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("FirstToken() error = %v, want ErrEmptyModel", err)
	}
	st := State{First: "a", Second: "b"}
	if _, err := g.NextToken(ctx, &st); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("NextToken() error = %v, want ErrEmptyModel", err)
	}
	if _, err := g.TextBlock(ctx, ""); !errors.Is(err, ErrEmptyModel) {
		t.Errorf("TextBlock() error = %v, want ErrEmptyModel", err)
	}
}

func TestSentence(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	var st State
	tokens, err := g.Sentence(ctx, &st)
	if err != nil {
		t.Fatalf("Sentence failed: %v", err)
	}
	want := []string{"This", "is", "a", "unit", "test", "."}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("Sentence() = %q, want %q", tokens, want)
	}
}

func TestTokenCap(t *testing.T) {
	g := NewGenerator(loopSource{})
	ctx := context.Background()

	var st State
	tokens, err := g.Sentence(ctx, &st)
	if !errors.Is(err, ErrTokenCap) {
		t.Fatalf("Sentence() error = %v, want ErrTokenCap", err)
	}
	if len(tokens) != MaxTokensPerBlock {
		t.Errorf("expected %d tokens before the cap, got %d", MaxTokensPerBlock, len(tokens))
	}

	if _, err = g.TextBlock(ctx, "", WithWordCount(5, 0)); !errors.Is(err, ErrTokenCap) {
		t.Errorf("TextBlock() error = %v, want ErrTokenCap", err)
	}

	// Without required punctuation the word count alone ends the paragraph.
	text, err := g.TextBlock(ctx, "", WithWordCount(3, 0), WithPunctuationRequired(false))
	if err != nil {
		t.Fatalf("TextBlock() failed: %v", err)
	}
	if text != "la la la" {
		t.Errorf("TextBlock() = %q, want %q", text, "la la la")
	}
}

func TestTextBlock(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	testCases := []struct {
		name     string
		prompt   string
		opts     []BlockOption
		expected string
	}{
		{
			name:     "no prompt",
			opts:     []BlockOption{WithWordCount(3, 0)},
			expected: "This is a unit test.",
		},
		{
			name:     "prompt restored",
			prompt:   "Writing a",
			opts:     []BlockOption{WithWordCount(3, 0)},
			expected: "Writing a unit test.",
		},
		{
			name:     "prompt not restored",
			prompt:   "Writing a",
			opts:     []BlockOption{WithWordCount(3, 0), WithPromptRestore(false)},
			expected: "unit test.",
		},
		{
			name:     "single word prompt",
			prompt:   "unit",
			opts:     []BlockOption{WithWordCount(1, 0)},
			expected: "unit test.",
		},
		{
			name:     "two paragraphs",
			opts:     []BlockOption{WithWordCount(3, 0), WithParagraphCount(2, 0)},
			expected: "This is a unit test.\n\nWriting a unit test.",
		},
		{
			name:     "punctuation optional",
			opts:     []BlockOption{WithWordCount(2, 0), WithPunctuationRequired(false)},
			expected: "This is",
		},
		{
			name:     "negative word count uses its magnitude",
			opts:     []BlockOption{WithWordCount(-2, 0), WithPunctuationRequired(false)},
			expected: "This is",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.TextBlock(ctx, tc.prompt, tc.opts...)
			if err != nil {
				t.Fatalf("TextBlock failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("TextBlock(%q) = %q, want %q", tc.prompt, got, tc.expected)
			}
		})
	}
}

func TestBlockKeepsState(t *testing.T) {
	ctx, g := setupTestGenerator(t, unitTestText)

	var st State
	if _, err := g.Block(ctx, &st, "", WithWordCount(3, 0)); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if st != (State{First: "test", Second: "."}) {
		t.Errorf("state after block = %+v", st)
	}
	token, err := g.NextToken(ctx, &st)
	if err != nil || token != "Writing" {
		t.Errorf("NextToken() after block = %q, %v; want %q", token, err, "Writing")
	}
}

func TestTextBlockTerminates(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t, unitTestText, anotherUnitText, "Go on! Stop. Go there?")
	g := NewGenerator(s, WithRand(rand.New(rand.NewPCG(1, 2))))

	for i := 0; i < 50; i++ {
		text, err := g.TextBlock(ctx, "", WithParagraphCount(2, 1))
		if err != nil {
			t.Fatalf("TextBlock failed: %v", err)
		}
		if text == "" || !strings.ContainsAny(text[len(text)-1:], ".!?") {
			t.Errorf("block %d does not end in terminal punctuation: %q", i, text)
		}
	}
}

func TestConcurrentTextBlocks(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t, unitTestText, anotherUnitText)
	g := NewGenerator(s)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := g.TextBlock(ctx, "This is"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent TextBlock failed: %v", err)
	}
}

func TestConcurrentTextBlocksWithRand(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t, unitTestText, anotherUnitText)
	g := NewGenerator(s, WithRand(rand.New(rand.NewPCG(1, 2))))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := g.TextBlock(ctx, "This is", WithWordCount(6, 4), WithParagraphCount(2, 1)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent TextBlock failed: %v", err)
	}
}

func TestWithRandRepeatable(t *testing.T) {
	ctx, s := setupTestStoreWithTraining(t, unitTestText, anotherUnitText)
	block := func() string {
		g := NewGenerator(s, WithRand(rand.New(rand.NewPCG(7, 9))))
		text, err := g.TextBlock(ctx, "", WithWordCount(8, 5), WithParagraphCount(2, 1))
		if err != nil {
			t.Fatalf("TextBlock failed: %v", err)
		}
		return text
	}
	if a, b := block(), block(); a != b {
		t.Errorf("same seed gave different blocks:\n%q\n%q", a, b)
	}
}

func TestWeightedChoice(t *testing.T) {
	choose := WeightedChoice(rand.New(rand.NewPCG(3, 4)))

	if got := choose([]Candidate{{"a", 0}, {"b", 0}}); got != "" {
		t.Errorf("all-zero weights drew %q", got)
	}
	for i := 0; i < 100; i++ {
		if got := choose([]Candidate{{"a", 0}, {"b", 5}, {"c", -1}}); got != "b" {
			t.Fatalf("drew non-positive weight candidate %q", got)
		}
	}
}

func TestSamplingChooser(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	candidates := []Candidate{{"rare", 1}, {"common", 50}, {"mid", 10}}

	testCases := []struct {
		name    string
		chooser Chooser
	}{
		{"deterministic", SamplingChooser(r, 0, 0)},
		{"top one", SamplingChooser(r, 1.0, 1)},
		{"top one with temperature", SamplingChooser(r, 2.5, 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				if got := tc.chooser(candidates); got != "common" {
					t.Fatalf("chooser drew %q, want %q", got, "common")
				}
			}
		})
	}

	if got := SamplingChooser(r, 0.5, 0)([]Candidate{{"x", 0}}); got != "" {
		t.Errorf("zero-weight set drew %q", got)
	}
	// Candidates must not be reordered in place.
	if candidates[0].Token != "rare" {
		t.Error("SamplingChooser modified its input")
	}
}

func TestSeedState(t *testing.T) {
	testCases := []struct {
		tokens   []string
		expected State
	}{
		{nil, State{}},
		{[]string{"one"}, State{Second: "one"}},
		{[]string{"one", "two"}, State{First: "one", Second: "two"}},
		{[]string{"one", "two", "three"}, State{First: "two", Second: "three"}},
	}
	for _, tc := range testCases {
		if got := SeedState(tc.tokens); got != tc.expected {
			t.Errorf("SeedState(%q) = %+v, want %+v", tc.tokens, got, tc.expected)
		}
	}
}

func TestRestorePrompt(t *testing.T) {
	testCases := []struct {
		prompt, text, expected string
	}{
		{"", "Hello.", "Hello."},
		{"Hello", "", "Hello"},
		{"Hello", "world.", "Hello world."},
		{"Hello ", "world.", "Hello world."},
		{"He said (", "yes).", "He said (yes)."},
		{"Quote: \"", "hi.", "Quote: \"hi."},
		{"Wait", ", what?", "Wait, what?"},
		{"Done", ".", "Done."},
	}
	for _, tc := range testCases {
		if got := RestorePrompt(tc.prompt, tc.text); got != tc.expected {
			t.Errorf("RestorePrompt(%q, %q) = %q, want %q", tc.prompt, tc.text, got, tc.expected)
		}
	}
}

func TestDetokenize(t *testing.T) {
	got := Detokenize([]string{"I", "ca", "n't", ".", "Then", "we", "did", "."})
	if want := "I can't. Then we did."; got != want {
		t.Errorf("Detokenize() = %q, want %q", got, want)
	}
}
