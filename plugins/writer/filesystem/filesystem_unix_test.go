//go:build !windows

package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"responsio/pkg/contract"
)

func TestMapPathInvalidUnix(t *testing.T) {
	w := New(nil)
	for _, id := range []string{"/abs", "..", "."} {
		_, err := w.mapPath(t.TempDir(), contract.ArtifactID(id))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "id %s", id)
	}
}
