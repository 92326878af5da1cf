package storefile

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/natefinch/atomic"
)

// mapFile maps path read-only. The returned release func must be called once
// the bytes are no longer used. Empty files are returned as an empty slice
// without a mapping.
func mapFile(path string) ([]byte, func(), error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		_ = file.Close()
		return []byte{}, func() {}, nil
	}

	fileMmap, mmapErr := mmap.Map(file, mmap.RDONLY, 0)
	if mmapErr != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("error trying to mmap file: %w", mmapErr)
	}
	return fileMmap, func() {
		_ = fileMmap.Unmap()
		_ = file.Close()
	}, nil
}

// Compress gzips src into dst. dst is replaced atomically, so a reader never
// sees a partially written archive. It returns the compressed size.
func Compress(src, dst string) (int64, error) {
	data, release, err := mapFile(src)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", src, err)
	}
	defer release()

	pr, pw := io.Pipe()
	counter := &countingReader{r: pr}
	done := make(chan struct{})
	go func() {
		defer close(done)
		zw := gzip.NewWriter(pw)
		if _, err := zw.Write(data); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(zw.Close())
	}()

	err = atomic.WriteFile(dst, counter)
	// The writer must be done with the mapping before it is released.
	_ = pr.CloseWithError(err)
	<-done
	if err != nil {
		return 0, fmt.Errorf("could not write %s: %w", dst, err)
	}
	return counter.n, nil
}

// Decompress gunzips src into dst, replacing dst atomically. It returns the
// decompressed size.
func Decompress(src, dst string) (int64, error) {
	data, release, err := mapFile(src)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", src, err)
	}
	defer release()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s is not a gzip archive: %w", src, err)
	}
	defer func(zr *gzip.Reader) {
		_ = zr.Close()
	}(zr)

	counter := &countingReader{r: zr}
	if err = atomic.WriteFile(dst, counter); err != nil {
		return 0, fmt.Errorf("could not write %s: %w", dst, err)
	}
	return counter.n, nil
}

// decompressTo gunzips src into w and returns the number of bytes written.
func decompressTo(src string, w io.Writer) (int64, error) {
	data, release, err := mapFile(src)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", src, err)
	}
	defer release()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s is not a gzip archive: %w", src, err)
	}
	defer func(zr *gzip.Reader) {
		_ = zr.Close()
	}(zr)

	return io.Copy(w, zr)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
