// Package storefile keeps SQLite stores gzip-compressed at rest. An Archive
// gives read access through a private decompressed working copy, and Update
// runs a training session that edits the store and compresses it again.
package storefile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Extension is the suffix of compressed stores.
const Extension = ".db.gz"

// ErrClosed is returned by Archive.DB after Close.
var ErrClosed = errors.New("storefile: archive is closed")

// Option configures an Archive or a training session.
type Option func(*options)

type options struct {
	tempDir string
	logger  *slog.Logger
}

// WithTempDir sets the directory working copies are decompressed into.
// Default: os.TempDir()
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithLogger sets the logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Archive is a compressed store opened for reading. The archive is not
// decompressed until DB is first called; the working copy lives until Close.
//
// The working copy is removed by Close only. If the process is killed before
// Close runs, the file is left behind in the temp directory.
type Archive struct {
	path    string
	opts    options
	mu      sync.Mutex
	db      *sql.DB
	tmpPath string
	closed  bool
}

// Open references the compressed store at path. It checks that the file
// exists but does not read it.
func Open(path string, opts ...Option) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not open archive: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("could not open archive: %s is a directory", path)
	}
	return &Archive{path: path, opts: newOptions(opts)}, nil
}

// Path returns the path of the compressed store.
func (a *Archive) Path() string {
	return a.path
}

// DB returns the handle to the working copy, decompressing the archive on
// the first call. Later calls return the same handle.
func (a *Archive) DB(ctx context.Context) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	if a.db != nil {
		return a.db, nil
	}

	name := strings.TrimSuffix(filepath.Base(a.path), Extension)
	tmp, err := os.CreateTemp(a.opts.tempDir, name+"-*.db")
	if err != nil {
		return nil, fmt.Errorf("could not create working copy: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := decompressTo(a.path, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		a.remove(ctx, tmpPath)
		return nil, fmt.Errorf("could not decompress archive: %w", err)
	}

	db, err := openDB(tmpPath)
	if err == nil {
		err = db.PingContext(ctx)
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		a.remove(ctx, tmpPath)
		return nil, fmt.Errorf("could not open working copy: %w", err)
	}

	a.db = db
	a.tmpPath = tmpPath
	a.opts.logger.InfoContext(ctx, "Archive decompressed",
		slog.String("archive", a.path),
		slog.String("working_copy", tmpPath),
		slog.String("size", humanize.Bytes(uint64(size))),
	)
	return db, nil
}

// Close closes the working copy, if one was opened, and deletes it. Failing
// to delete the file is logged and otherwise ignored. Close is idempotent.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.tmpPath != "" {
		a.remove(context.Background(), a.tmpPath)
		a.tmpPath = ""
	}
	return err
}

// remove deletes a working copy and the journal files SQLite may leave next
// to it.
func (a *Archive) remove(ctx context.Context, path string) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && (p == path || !errors.Is(err, os.ErrNotExist)) {
			a.opts.logger.WarnContext(ctx, "Could not remove working copy",
				slog.String("path", p),
				slog.Any("error", err),
			)
		}
	}
}
