package markov

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ExportedModel is the serializable representation of a triad store,
// used for JSON-based import and export.
type ExportedModel struct {
	Triads []Triad `json:"triads"`
}

// Triads returns every persisted triad ordered by key.
func (s *Store) Triads(ctx context.Context) ([]Triad, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT first_token, second_token, third_token, occurrences FROM markov_triads ORDER BY first_token, second_token, third_token;`)
	if err != nil {
		return nil, fmt.Errorf("could not query triads: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var triads []Triad
	for rows.Next() {
		var t Triad
		if err = rows.Scan(&t.First, &t.Second, &t.Third, &t.Occurrences); err != nil {
			return nil, err
		}
		triads = append(triads, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return triads, nil
}

// Export serializes every triad in the store as JSON and writes it to the
// provided io.Writer. This is useful for backups or for moving a model
// between stores.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	triads, err := s.Triads(ctx)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.Int("triads_exported", len(triads)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportedModel{Triads: triads})
}

// Import reads a JSON model from an io.Reader and merges its triads into
// the store with the given mode. Triads with empty tokens or non-positive
// occurrences are rejected before anything is written.
func (s *Store) Import(ctx context.Context, r io.Reader, mode MergeMode) error {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}

	for i, t := range imported.Triads {
		if t.First == "" || t.Second == "" || t.Third == "" {
			return fmt.Errorf("import consistency error: triad %d has an empty token", i)
		}
		if t.Occurrences < 1 {
			return fmt.Errorf("import consistency error: triad %d has occurrences %d", i, t.Occurrences)
		}
	}

	if err := s.Merge(ctx, imported.Triads, mode); err != nil {
		return fmt.Errorf("failed to merge imported triads: %w", err)
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("mode", mode.String()),
		slog.Int("triads_merged", len(imported.Triads)),
	)
	return nil
}
