package markov

import (
	"context"
	"log/slog"
)

// Stream walks from st and returns a read-only channel of Tokens. With n > 0
// it emits n tokens; otherwise it emits one sentence, ending at the first
// terminal token. Either way at most MaxTokensPerBlock tokens are emitted.
// The first token is drawn before Stream returns, so an empty model is
// reported as an error rather than as an empty channel. The channel is closed
// when generation is complete, a lookup fails, or the context is cancelled.
// Callers must drain the channel or cancel ctx; otherwise the generating
// goroutine blocks on its next send.
func (g *Generator) Stream(ctx context.Context, st State, n int) (<-chan Token, error) {
	first, err := g.NextToken(ctx, &st)
	if err != nil {
		return nil, err
	}

	limit := n
	if limit <= 0 || limit > MaxTokensPerBlock {
		limit = MaxTokensPerBlock
	}

	tokenChan := make(chan Token)

	go func() {
		defer close(tokenChan)

		token := first
		for generated := 1; ; generated++ {
			if ctx.Err() != nil {
				g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			}

			eoc := IsTerminal(token)
			select {
			case <-ctx.Done():
				g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			case tokenChan <- Token{Text: token, EOC: eoc}:
			}

			if generated >= limit || (n <= 0 && eoc) {
				return
			}

			var err error
			token, err = g.NextToken(ctx, &st)
			if err != nil {
				g.logger.ErrorContext(ctx, "failed to get next token for stream",
					slog.String("first", st.First),
					slog.String("second", st.Second),
					slog.Any("error", err),
				)
				return
			}
		}
	}()

	return tokenChan, nil
}
