package storefile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// PlainPath returns the path of the uncompressed store that sits next to the
// archive at gzPath during a training session.
func PlainPath(gzPath string) string {
	return strings.TrimSuffix(gzPath, ".gz")
}

// Update runs fn against the store archived at gzPath and compresses the
// result back into it.
//
// An uncompressed store left next to the archive by an earlier failed
// session is reused. Otherwise the archive is decompressed, or an empty
// store is created if there is no archive yet. After fn succeeds the store
// is vacuumed, compressed atomically over gzPath and the uncompressed file is
// removed. If fn fails its error is returned and the uncompressed store is
// kept so the session can be resumed.
func Update(ctx context.Context, gzPath string, fn func(context.Context, *sql.DB) error, opts ...Option) error {
	if !strings.HasSuffix(gzPath, ".gz") {
		return fmt.Errorf("archive path %q must end in .gz", gzPath)
	}
	o := newOptions(opts)
	plain := PlainPath(gzPath)

	if _, err := os.Stat(plain); errors.Is(err, os.ErrNotExist) {
		if _, err = os.Stat(gzPath); err == nil {
			size, err := Decompress(gzPath, plain)
			if err != nil {
				return err
			}
			o.logger.InfoContext(ctx, "Archive decompressed for training",
				slog.String("archive", gzPath),
				slog.String("size", humanize.Bytes(uint64(size))),
			)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not stat archive: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("could not stat store: %w", err)
	} else {
		o.logger.InfoContext(ctx, "Resuming from uncompressed store", slog.String("path", plain))
	}

	db, err := openDB(plain)
	if err != nil {
		return fmt.Errorf("could not open store: %w", err)
	}
	defer func(db *sql.DB) {
		_ = db.Close()
	}(db)

	if err = fn(ctx, db); err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("could not vacuum store: %w", err)
	}
	if err = db.Close(); err != nil {
		return fmt.Errorf("could not close store: %w", err)
	}

	info, err := os.Stat(plain)
	if err != nil {
		return fmt.Errorf("could not stat store: %w", err)
	}
	compressed, err := Compress(plain, gzPath)
	if err != nil {
		return err
	}
	if err = os.Remove(plain); err != nil {
		o.logger.WarnContext(ctx, "Could not remove uncompressed store",
			slog.String("path", plain),
			slog.Any("error", err),
		)
	}

	o.logger.InfoContext(ctx, "Archive updated",
		slog.String("archive", gzPath),
		slog.String("size", humanize.Bytes(uint64(info.Size()))),
		slog.String("compressed", humanize.Bytes(uint64(compressed))),
	)
	return nil
}
