// Package corpus builds the two reference corpora once per process and
// hands out the same immutable *contract.Corpus to every trial.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"responsio/internal/diag"
	"responsio/pkg/contract"
)

// Sources locates the corpus files.
type Sources struct {
	// LyricDir holds responsion_<prefix>_compiled.xml per family.
	LyricDir string
	// ProseDir is walked for every prose document.
	ProseDir string
	// Families overrides the lyric family set; empty means all four.
	Families []contract.Family
}

// Cache memoizes built corpora by kind. Concurrent first loads of one kind
// share a single build; failed builds are not remembered.
type Cache struct {
	src     Sources
	reader  contract.Reader
	decoder contract.CanticumDecoder
	logger  *diag.Logger

	mu     sync.RWMutex
	built  map[contract.Kind]*contract.Corpus
	flight singleflight.Group
	builds atomic.Int64
}

// New creates an empty cache. reader walks the prose dir; decoder parses
// both corpora. logger may be nil.
func New(src Sources, reader contract.Reader, decoder contract.CanticumDecoder, logger *diag.Logger) *Cache {
	if len(src.Families) == 0 {
		src.Families = contract.Families
	}
	return &Cache{
		src:     src,
		reader:  reader,
		decoder: decoder,
		logger:  logger,
		built:   make(map[contract.Kind]*contract.Corpus, 2),
	}
}

// Load returns the corpus for kind, building it on first use.
func (c *Cache) Load(ctx context.Context, kind contract.Kind) (*contract.Corpus, error) {
	c.mu.RLock()
	cp, ok := c.built[kind]
	c.mu.RUnlock()
	if ok {
		return cp, nil
	}
	v, err, _ := c.flight.Do(string(kind), func() (any, error) {
		c.mu.RLock()
		cp, ok := c.built[kind]
		c.mu.RUnlock()
		if ok {
			return cp, nil
		}
		cp, err := c.build(ctx, kind)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.built[kind] = cp
		c.mu.Unlock()
		return cp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*contract.Corpus), nil
}

// Warm builds every kind up front, before workers start.
func (c *Cache) Warm(ctx context.Context, kinds ...contract.Kind) error {
	for _, k := range kinds {
		if _, err := c.Load(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Builds counts completed corpus builds (successful or not).
func (c *Cache) Builds() int64 { return c.builds.Load() }

func (c *Cache) build(ctx context.Context, kind contract.Kind) (*contract.Corpus, error) {
	defer c.builds.Add(1)
	t := c.logger.StartWithKV("corpus", "load", "", -1, map[string]string{"kind": string(kind)})
	var (
		cantica []contract.Canticum
		err     error
	)
	switch kind {
	case contract.KindLyric:
		cantica, err = c.lyric(ctx)
	case contract.KindProse:
		cantica, err = c.prose(ctx)
	default:
		err = &contract.CorpusLoadError{Kind: kind, Err: fmt.Errorf("%w: unknown corpus kind", contract.ErrInvalidInput)}
	}
	var cp *contract.Corpus
	if err == nil {
		cp = contract.NewCorpus(kind, cantica)
		if cp.Len() == 0 {
			err = &contract.CorpusLoadError{Kind: kind, Path: c.dir(kind), Err: fmt.Errorf("%w: corpus has no lines", contract.ErrDegenerateInput)}
		}
	}
	if err == nil {
		t.Finish("load", int64(cp.Len()))
		diag.IncOp("corpus", "load", "success")
		diag.ObserveDuration("corpus", "load", t.Elapsed().Milliseconds())
		return cp, nil
	}
	code := diag.Classify(err)
	c.logger.ErrorWithKV("corpus", string(code), err.Error(), t.Since(), "", -1, map[string]string{"kind": string(kind)})
	diag.IncOp("corpus", "load", "error")
	diag.IncError("corpus", string(code))
	return nil, err
}

func (c *Cache) dir(kind contract.Kind) string {
	if kind == contract.KindLyric {
		return c.src.LyricDir
	}
	return c.src.ProseDir
}

func (c *Cache) lyric(ctx context.Context) ([]contract.Canticum, error) {
	var out []contract.Canticum
	for _, fam := range c.src.Families {
		path, err := fam.File(c.src.LyricDir)
		if err != nil {
			return nil, &contract.CorpusLoadError{Kind: contract.KindLyric, Err: err}
		}
		cs, err := c.decodeFile(ctx, path)
		if err != nil {
			return nil, &contract.CorpusLoadError{Kind: contract.KindLyric, Path: path, Err: err}
		}
		out = append(out, cs...)
	}
	return out, nil
}

func (c *Cache) decodeFile(ctx context.Context, path string) ([]contract.Canticum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.decoder.Decode(ctx, contract.NormalizeFileID(path), f)
}

func (c *Cache) prose(ctx context.Context) ([]contract.Canticum, error) {
	if c.src.ProseDir == "" {
		return nil, &contract.CorpusLoadError{Kind: contract.KindProse, Err: contract.ErrPathInvalid}
	}
	var out []contract.Canticum
	err := c.reader.Iterate(ctx, []string{c.src.ProseDir}, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		cs, err := c.decoder.Decode(ctx, fid, rc)
		if err != nil {
			return &contract.CorpusLoadError{Kind: contract.KindProse, Path: string(fid), Err: err}
		}
		out = append(out, cs...)
		return nil
	})
	if err != nil {
		var cle *contract.CorpusLoadError
		if errors.As(err, &cle) {
			return nil, cle
		}
		return nil, &contract.CorpusLoadError{Kind: contract.KindProse, Path: c.src.ProseDir, Err: err}
	}
	return out, nil
}
