package markov

import "errors"

var (
	// ErrTooFewTokens is returned when a token sequence is too short to form a triad.
	ErrTooFewTokens = errors.New("markov: input has fewer than 3 tokens")
	// ErrEmptyModel is returned when the store holds no sentence-starting token,
	// so no walk can be started or restarted.
	ErrEmptyModel = errors.New("markov: model has no sentence-starting tokens")
	// ErrTokenCap is returned when a generation call reaches MaxTokensPerBlock
	// without producing terminal punctuation.
	ErrTokenCap = errors.New("markov: token cap reached before terminal punctuation")
)
