package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"responsio/pkg/contract"
)

// Options configures corpus file discovery.
type Options struct {
	// BufSize is the read buffer size in bytes. Default 64KiB.
	BufSize int `json:"buf_size"`
	// ExcludeDirNames skips directories with these base names while walking,
	// e.g. ["baseline", ".git"]. Single-file roots are unaffected.
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Extensions keeps only files with one of these suffixes (case-insensitive).
	// Default [".xml"]. Single-file roots are always yielded.
	Extensions []string `json:"extensions"`
}

// FileSystem yields corpus documents from files and directories.
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	exts       []string
}

// New creates a FileSystem reader.
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ex := make(map[string]struct{})
	exts := []string{".xml"}
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
		if len(opts.Extensions) > 0 {
			exts = exts[:0]
			for _, e := range opts.Extensions {
				if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
					exts = append(exts, e)
				}
			}
		}
	}
	return &FileSystem{bufSize: b, excludeDir: ex, exts: exts}
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate walks roots in the given order and calls yield for each regular
// file, directories in lexical order. Ownership of rc passes to yield.
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// directories first, symlinked directories are not followed
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.IsDir() || !r.wanted(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		t, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) wanted(name string) bool {
	lower := strings.ToLower(name)
	for _, e := range r.exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

func (r *FileSystem) open(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser pairs a bufio.Reader with the underlying Closer.
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
