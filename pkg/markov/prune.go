package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// PruneUncommon removes every triad whose first token heads at most
// threshold rows. The threshold counts distinct (second, third) rows per
// first token, not the sum of their occurrences: it bounds model size, it is
// not a frequency filter. It returns the number of triads removed.
func (s *Store) PruneUncommon(ctx context.Context, threshold int) (int64, error) {
	defer s.invalidate()

	res, err := s.stmtPruneUncommon.ExecContext(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("could not prune uncommon tokens: %w", err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Store pruned",
		slog.Int("threshold", threshold),
		slog.Int64("triads_removed", rowsAffected),
	)
	return rowsAffected, nil
}

// Vacuum rebuilds the database file, reclaiming the pages freed by merges
// and pruning. It must not run inside a transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	defer s.invalidate()
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("could not vacuum store: %w", err)
	}
	return nil
}

// purgeSelfLoops deletes triads whose three tokens are identical; they make
// the walk repeat a single token.
func (s *Store) purgeSelfLoops(ctx context.Context) (int64, error) {
	res, err := s.stmtPurgeSelfLoops.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not purge self-loop triads: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
