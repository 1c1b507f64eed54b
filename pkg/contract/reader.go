package contract

import (
	"context"
	"io"
)

// Reader walks input roots and yields one stream per regular file.
// Constraints:
// 1) streaming, one callback per file;
// 2) FileID is stable and platform-neutral;
// 3) no decoding, bytes only;
// 4) no internal concurrency.
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}

// CanticumDecoder parses one compiled document into its cantica,
// grouping strophes by responsion id in document order.
type CanticumDecoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader) ([]Canticum, error)
}

// Sampler draws one synthetic canticum with the shape of real from corpus.
// The result is a pure function of (real, corpus, seed).
type Sampler interface {
	Sample(ctx context.Context, real Canticum, corpus *Corpus, seed uint64) (Canticum, error)
}
