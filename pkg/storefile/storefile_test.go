package storefile

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createArchive builds a compressed store holding n rows in table t.
func createArchive(t *testing.T, dir string, n int) string {
	t.Helper()
	gzPath := filepath.Join(dir, "model"+Extension)
	err := Update(context.Background(), gzPath, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if _, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", i); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return gzPath
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	return n
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewPCG(7, 8))

	for name, data := range map[string][]byte{
		"empty":  {},
		"text":   bytes.Repeat([]byte("a unit test. "), 1000),
		"random": func() []byte {
			b := make([]byte, 64*1024)
			for i := range b {
				b[i] = byte(r.IntN(256))
			}
			return b
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			src := filepath.Join(dir, name)
			gz := src + ".gz"
			out := src + ".out"
			require.NoError(t, os.WriteFile(src, data, 0o644))

			compressed, err := Compress(src, gz)
			require.NoError(t, err)
			info, err := os.Stat(gz)
			require.NoError(t, err)
			assert.Equal(t, info.Size(), compressed)

			size, err := Decompress(gz, out)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), size)

			got, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestDecompressRejectsPlainFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(src, []byte("not gzip"), 0o644))

	_, err := Decompress(src, filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"+Extension))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestArchiveLifecycle(t *testing.T) {
	dir := t.TempDir()
	tmpDir := t.TempDir()
	gzPath := createArchive(t, dir, 3)
	ctx := context.Background()

	archive, err := Open(gzPath, WithTempDir(tmpDir))
	require.NoError(t, err)
	assert.Equal(t, gzPath, archive.Path())
	assert.Empty(t, dirEntries(t, tmpDir), "Open must not decompress")

	db, err := archive.DB(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, db))
	assert.Len(t, dirEntries(t, tmpDir), 1)

	again, err := archive.DB(ctx)
	require.NoError(t, err)
	assert.Same(t, db, again)
	assert.Len(t, dirEntries(t, tmpDir), 1, "the archive is decompressed once")

	require.NoError(t, archive.Close())
	assert.Empty(t, dirEntries(t, tmpDir), "Close must remove the working copy")
	require.NoError(t, archive.Close())

	_, err = archive.DB(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArchiveWorkingCopiesAreIndependent(t *testing.T) {
	gzPath := createArchive(t, t.TempDir(), 2)
	tmpDir := t.TempDir()
	ctx := context.Background()

	first, err := Open(gzPath, WithTempDir(tmpDir))
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	second, err := Open(gzPath, WithTempDir(tmpDir))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	db1, err := first.DB(ctx)
	require.NoError(t, err)
	db2, err := second.DB(ctx)
	require.NoError(t, err)
	assert.Len(t, dirEntries(t, tmpDir), 2)

	_, err = db1.Exec("INSERT INTO t (v) VALUES (99)")
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, db1))
	assert.Equal(t, 2, countRows(t, db2))
}

func TestArchiveCloseIgnoresMissingWorkingCopy(t *testing.T) {
	gzPath := createArchive(t, t.TempDir(), 1)
	tmpDir := t.TempDir()

	archive, err := Open(gzPath, WithTempDir(tmpDir))
	require.NoError(t, err)
	_, err = archive.DB(context.Background())
	require.NoError(t, err)

	for _, name := range dirEntries(t, tmpDir) {
		require.NoError(t, os.Remove(filepath.Join(tmpDir, name)))
	}
	assert.NoError(t, archive.Close())
}

func TestUpdate(t *testing.T) {
	dir := t.TempDir()
	gzPath := createArchive(t, dir, 2)
	ctx := context.Background()

	assert.Equal(t, []string{"model" + Extension}, dirEntries(t, dir), "the plain store is removed")

	err := Update(ctx, gzPath, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (2)")
		return err
	})
	require.NoError(t, err)

	archive, err := Open(gzPath, WithTempDir(t.TempDir()))
	require.NoError(t, err)
	defer func() { _ = archive.Close() }()
	db, err := archive.DB(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, db))
}

func TestUpdateFailureKeepsPlainStore(t *testing.T) {
	dir := t.TempDir()
	gzPath := createArchive(t, dir, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Update(ctx, gzPath, func(ctx context.Context, db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.FileExists(t, PlainPath(gzPath))

	// The next session resumes from the plain store, including the row the
	// failed session wrote.
	err = Update(ctx, gzPath, func(ctx context.Context, db *sql.DB) error {
		assert.Equal(t, 2, countRows(t, db))
		return nil
	})
	require.NoError(t, err)
	assert.NoFileExists(t, PlainPath(gzPath))
}

func TestUpdateRequiresGzPath(t *testing.T) {
	err := Update(context.Background(), filepath.Join(t.TempDir(), "model.db"), func(context.Context, *sql.DB) error {
		return nil
	})
	assert.Error(t, err)
}
