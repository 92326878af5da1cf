package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const (
	unitTestText    = "This is a unit test. Writing a unit test."
	anotherUnitText = "This is another unit test."
)

// setupTestStore creates a new file-backed SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T, opts ...StoreOption) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewStore(context.Background(), db, opts...)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// setupTestStoreWithTraining is a convenience helper that also merges the
// given lines in Add mode.
func setupTestStoreWithTraining(t *testing.T, lines ...string) (context.Context, *Store) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	for _, line := range lines {
		if err := s.MergeText(ctx, line, Add); err != nil {
			t.Fatalf("setup: MergeText(%q) failed: %v", line, err)
		}
	}
	return ctx, s
}

// triadCounts returns the persisted table as "first second third" -> occurrences.
func triadCounts(t *testing.T, s *Store) map[string]int {
	t.Helper()
	triads, err := s.Triads(context.Background())
	if err != nil {
		t.Fatalf("Triads() failed: %v", err)
	}
	counts := make(map[string]int, len(triads))
	for _, tr := range triads {
		counts[tr.First+" "+tr.Second+" "+tr.Third] = tr.Occurrences
	}
	return counts
}

// smallestChooser always picks the lexicographically smallest candidate.
func smallestChooser(candidates []Candidate) string {
	best := ""
	for _, c := range candidates {
		if c.Weight > 0 && (best == "" || c.Token < best) {
			best = c.Token
		}
	}
	return best
}

// setupTestStoreBench creates a database for benchmarking.
func setupTestStoreBench(b *testing.B) *Store {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF&_cache_size=-16000&_mmap_size=268435456")
	if err != nil {
		b.Fatalf("failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = db.Close() })

	s, err := NewStore(context.Background(), db)
	if err != nil {
		b.Fatalf("NewStore() error = %v", err)
	}
	b.Cleanup(s.Close)

	return s
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
