package contract

import (
	"path"
	"strings"
)

// FileID is a normalized, slash-separated path.
type FileID string

// NormalizeFileID makes a path platform-neutral:
// - forward slashes only
// - cleaned of redundant separators and '.'/'..' segments
// - relative/absolute meaning preserved
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
