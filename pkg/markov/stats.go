package markov

import (
	"context"
)

// Stats holds aggregated statistics for a triad store.
type Stats struct {
	Triads           int // The number of persisted triads.
	TotalOccurrences int // The sum of occurrences of all triads; the number of trained windows.
	FirstTokens      int // The number of distinct first tokens.
	StartingTokens   int // The number of distinct tokens that can start a sentence.
}

// Stats returns a snapshot of statistics for the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.stmtCountTriads.QueryRowContext(ctx).Scan(&st.Triads); err != nil {
		return nil, err
	}
	if err := s.stmtSumOccurrences.QueryRowContext(ctx).Scan(&st.TotalOccurrences); err != nil {
		return nil, err
	}
	if err := s.stmtCountFirst.QueryRowContext(ctx).Scan(&st.FirstTokens); err != nil {
		return nil, err
	}
	if err := s.stmtCountStarters.QueryRowContext(ctx).Scan(&st.StartingTokens); err != nil {
		return nil, err
	}
	return &st, nil
}
