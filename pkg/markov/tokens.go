package markov

import (
	"context"
	"database/sql"
	"fmt"
)

// Token represents a single generated unit of text. EOC is set when the
// token is terminal punctuation and therefore ends a sentence.
type Token struct {
	Text string
	EOC  bool
}

// Tokenizer splits input text into word and punctuation tokens. It allows
// the store and generator to be independent of the tokenization strategy.
type Tokenizer interface {
	// Tokenize returns the ordered tokens of text. Whitespace-only input
	// yields an empty slice.
	Tokenize(text string) []string
}

// Candidate is a possible next token together with its observed weight.
type Candidate struct {
	Token  string
	Weight int
}

// CandidateSource is the read-only lookup side of a triad model. All
// methods must be safe for concurrent use. Returned slices must not be
// modified by the caller.
type CandidateSource interface {
	FirstTokenCandidates(ctx context.Context) ([]Candidate, error)
	NextTokenCandidates(ctx context.Context, first, second string) ([]Candidate, error)
}

// IsTerminal reports whether token ends a sentence.
func IsTerminal(token string) bool {
	return token == "." || token == "!" || token == "?"
}

// FirstTokenCandidates returns every token observed directly after a
// terminal punctuation token, weighted by the summed occurrences of all
// triads that produce it.
func (s *Store) FirstTokenCandidates(ctx context.Context) ([]Candidate, error) {
	const key = "first"
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]Candidate), nil
	}
	candidates, err := queryCandidates(ctx, s.stmtFirstTokens)
	if err != nil {
		return nil, fmt.Errorf("could not query first token candidates: %w", err)
	}
	s.cache.Add(key, candidates)
	return candidates, nil
}

// NextTokenCandidates returns the possible successors of the given context.
// With both tokens it returns the rows keyed exactly on (first, second).
// With only first it treats first as the most recent word and aggregates
// every third token over the rows whose second token equals it.
func (s *Store) NextTokenCandidates(ctx context.Context, first, second string) ([]Candidate, error) {
	var (
		key  string
		stmt *sql.Stmt
		args []any
	)
	if second != "" {
		key = "next\x00" + first + "\x00" + second
		stmt = s.stmtNextExact
		args = []any{first, second}
	} else {
		key = "unigram\x00" + first
		stmt = s.stmtNextUnigram
		args = []any{first}
	}

	if cached, ok := s.cache.Get(key); ok {
		return cached.([]Candidate), nil
	}
	candidates, err := queryCandidates(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query next token candidates for %q %q: %w", first, second, err)
	}
	s.cache.Add(key, candidates)
	return candidates, nil
}

// CheckReady returns ErrEmptyModel if no sentence-starting token can be
// drawn from the store.
func (s *Store) CheckReady(ctx context.Context) error {
	candidates, err := s.FirstTokenCandidates(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.Weight > 0 {
			return nil
		}
	}
	return ErrEmptyModel
}

func queryCandidates(ctx context.Context, stmt *sql.Stmt, args ...any) ([]Candidate, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err = rows.Scan(&c.Token, &c.Weight); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}
