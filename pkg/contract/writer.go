package contract

import (
	"context"
	"io"
)

// ArtifactID names a file relative to a writer root.
type ArtifactID = FileID

// Writer persists a byte stream under root/id.
// Constraints:
//  1. one writer per ArtifactID;
//  2. streaming, content is passed through untouched;
//  3. returns promptly on ctx cancellation;
//  4. errors surface as-is (no retry, no fallback).
type Writer interface {
	Write(ctx context.Context, root string, id ArtifactID, r io.Reader) (string, error)
}

// CanticumWriter serializes a canticum into dir using the corpus schema and
// returns the written path. Same-named files are replaced atomically.
type CanticumWriter interface {
	WriteCanticum(ctx context.Context, c Canticum, dir string) (string, error)
}
