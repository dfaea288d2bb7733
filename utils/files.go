package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenReader opens path and decompresses by extension: .gz (pgzip), .bgz (bgzf),
// .bz2, .zst. Anything else is read as is.
func OpenReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buffered := bufio.NewReader(f)

	var rc io.ReadCloser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		rc, err = gzip.NewReader(buffered)
	case ".bgz":
		rc, err = bgzf.NewReader(buffered, 0)
	case ".bz2":
		rc, err = bzip2.NewReader(buffered, new(bzip2.ReaderConfig))
	case ".zst", ".zstd":
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(buffered)
		if err == nil {
			rc = dec.IOReadCloser()
		}
	default:
		return &readCloser{Reader: buffered, closers: []io.Closer{f}}, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &readCloser{Reader: rc, closers: []io.Closer{f, rc}}, nil
}

// CreateResultsDir makes outDir (and parents) if needed and returns its absolute path.
func CreateResultsDir(outDir string) (string, error) {
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(absOut, 0755); err != nil {
		return "", fmt.Errorf("creating results directory %s: %w", absOut, err)
	}
	return absOut, nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
