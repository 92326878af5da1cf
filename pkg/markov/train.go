package markov

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Triad is one persisted transition: the third token observed after the
// first two, with the number of times it was observed.
type Triad struct {
	First       string `json:"first"`
	Second      string `json:"second"`
	Third       string `json:"third"`
	Occurrences int    `json:"occurrences"`
}

// MergeMode selects how a merged occurrence count combines with the
// persisted one.
type MergeMode int

const (
	// Add increments persisted occurrences by the merged count.
	Add MergeMode = iota
	// Overwrite replaces persisted occurrences with the merged count.
	Overwrite
)

func (m MergeMode) String() string {
	switch m {
	case Add:
		return "add"
	case Overwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// TrainReport summarizes a Train call.
type TrainReport struct {
	Lines   int // lines read
	Merged  int // lines merged into the store
	Skipped int // lines with fewer than 3 tokens
}

// BuildTriads slides a 3-token window across tokens, producing one triad with
// an occurrence of 1 per window. Without wrap the last two dangling windows
// are omitted; with wrap the window indexes modulo len(tokens), linking the
// end of the sequence back to its start.
func BuildTriads(tokens []string, wrap bool) ([]Triad, error) {
	n := len(tokens)
	if n < 3 {
		return nil, ErrTooFewTokens
	}

	windows := n - 2
	if wrap {
		windows = n
	}
	triads := make([]Triad, 0, windows)
	for i := 0; i < windows; i++ {
		triads = append(triads, Triad{
			First:       tokens[i],
			Second:      tokens[(i+1)%n],
			Third:       tokens[(i+2)%n],
			Occurrences: 1,
		})
	}
	return triads, nil
}

// Aggregate sums the occurrences of duplicate keys and returns the triads
// sorted by key.
func Aggregate(triads []Triad) []Triad {
	type key struct{ first, second, third string }

	counts := make(map[key]int, len(triads))
	for _, t := range triads {
		counts[key{t.First, t.Second, t.Third}] += t.Occurrences
	}

	out := make([]Triad, 0, len(counts))
	for k, occ := range counts {
		out = append(out, Triad{First: k.first, Second: k.second, Third: k.third, Occurrences: occ})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].First != out[j].First {
			return out[i].First < out[j].First
		}
		if out[i].Second != out[j].Second {
			return out[i].Second < out[j].Second
		}
		return out[i].Third < out[j].Third
	})
	return out
}

// Merge aggregates triads and upserts them into the store through a staging
// table, at most MergeChunkSize rows per transaction. Each chunk commits on
// its own: if a chunk fails it is rolled back, earlier chunks stay committed
// and the error is returned. Self-loop triads are purged afterwards.
func (s *Store) Merge(ctx context.Context, triads []Triad, mode MergeMode) error {
	batch := Aggregate(triads)
	defer s.invalidate()

	for start, chunk := 0, 0; start < len(batch); start, chunk = start+MergeChunkSize, chunk+1 {
		end := start + MergeChunkSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := s.mergeChunk(ctx, batch[start:end], mode); err != nil {
			return fmt.Errorf("merge chunk %d (%d triads): %w", chunk, end-start, err)
		}
	}

	purged, err := s.purgeSelfLoops(ctx)
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Triads merged",
		slog.String("mode", mode.String()),
		slog.Int("triads", len(batch)),
		slog.Int64("self_loops_removed", purged),
	)
	return nil
}

func (s *Store) mergeChunk(ctx context.Context, chunk []Triad, mode MergeMode) error {
	const (
		createStaging = `
CREATE TEMP TABLE IF NOT EXISTS load_markov_triads (
    first_token  TEXT NOT NULL,
    second_token TEXT NOT NULL,
    third_token  TEXT NOT NULL,
    occurrences  INTEGER NOT NULL,
    PRIMARY KEY (first_token, second_token, third_token)
);
`
		clearStaging = `DELETE FROM load_markov_triads;`
		loadStaging  = `INSERT INTO load_markov_triads (first_token, second_token, third_token, occurrences) VALUES (?, ?, ?, ?);`
		// "WHERE true" keeps SQLite from reading ON CONFLICT as part of the SELECT.
		upsertAdd = `
INSERT INTO markov_triads (first_token, second_token, third_token, occurrences)
SELECT first_token, second_token, third_token, occurrences FROM load_markov_triads WHERE true
ON CONFLICT(first_token, second_token, third_token) DO UPDATE SET occurrences = occurrences + excluded.occurrences;
`
		upsertOverwrite = `
INSERT INTO markov_triads (first_token, second_token, third_token, occurrences)
SELECT first_token, second_token, third_token, occurrences FROM load_markov_triads WHERE true
ON CONFLICT(first_token, second_token, third_token) DO UPDATE SET occurrences = excluded.occurrences;
`
	)

	upsert := upsertAdd
	if mode == Overwrite {
		upsert = upsertOverwrite
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, createStaging); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, clearStaging); err != nil {
		return fmt.Errorf("failed to clear staging table: %w", err)
	}

	stmtLoad, err := tx.PrepareContext(ctx, loadStaging)
	if err != nil {
		return fmt.Errorf("failed to prepare staging insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtLoad)

	for _, t := range chunk {
		if _, err = stmtLoad.ExecContext(ctx, t.First, t.Second, t.Third, t.Occurrences); err != nil {
			return fmt.Errorf("failed to stage triad (%q, %q, %q): %w", t.First, t.Second, t.Third, err)
		}
	}

	if _, err = tx.ExecContext(ctx, upsert); err != nil {
		return fmt.Errorf("failed to upsert staged triads: %w", err)
	}
	if _, err = tx.ExecContext(ctx, clearStaging); err != nil {
		return fmt.Errorf("failed to clear staging table: %w", err)
	}

	return tx.Commit()
}

// MergeText tokenizes text with a leading sentence boundary, builds its
// triads and merges them. ErrTooFewTokens is returned before anything is
// written if fewer than 3 tokens are found, counting the boundary.
//
// Without wraparound nothing precedes the boundary, so a second one is
// prepended: the (".", ".", first word) triad is what makes the first word
// a sentence starter. With wraparound the end of the text provides it.
func (s *Store) MergeText(ctx context.Context, text string, mode MergeMode) error {
	tokens := TrainingTokens(s.tokenizer, text)
	if len(tokens) < 3 {
		return ErrTooFewTokens
	}
	if !s.wrap {
		tokens = append([]string{"."}, tokens...)
	}

	triads, err := BuildTriads(tokens, s.wrap)
	if err != nil {
		return err
	}
	return s.Merge(ctx, triads, mode)
}

// Train merges every line read from r, with its trailing newline stripped.
// Lines too short to form a triad are skipped, counted and logged at warn
// level with their line number; any other error stops training and is
// returned along with the partial report.
func (s *Store) Train(ctx context.Context, r io.Reader, mode MergeMode) (TrainReport, error) {
	// maxLineLength bounds the memory used for a single training line.
	const maxLineLength = 16 * 1024 * 1024

	var report TrainReport
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Lines++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		err := s.MergeText(ctx, line, mode)
		switch {
		case errors.Is(err, ErrTooFewTokens):
			report.Skipped++
			if strings.TrimSpace(line) == "" {
				s.logger.DebugContext(ctx, "Skipping blank training line", slog.Int("line", report.Lines))
				break
			}
			s.logger.WarnContext(ctx, "Skipping short training line",
				slog.Int("line", report.Lines),
				slog.Any("error", err),
			)
		case err != nil:
			return report, fmt.Errorf("line %d: %w", report.Lines, err)
		default:
			report.Merged++
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("reading training data: %w", err)
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("mode", mode.String()),
		slog.Int("lines", report.Lines),
		slog.Int("merged", report.Merged),
		slog.Int("skipped", report.Skipped),
	)
	return report, nil
}
