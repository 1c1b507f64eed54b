package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"responsio/pkg/contract"
)

func noTemp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "tmp file not cleaned: %s", e.Name())
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w := New(nil)
	p, err := w.Write(context.Background(), dir, "py04_000.xml", bytes.NewBufferString("data"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "py04_000.xml"), p)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	noTemp(t, dir)
}

func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w := New(nil)
	_, err := w.Write(context.Background(), dir, "out.xml", bytes.NewBufferString("v1"))
	require.NoError(t, err)
	p, err := w.Write(context.Background(), dir, "out.xml", bytes.NewBufferString("v2"))
	require.NoError(t, err)
	b, _ := os.ReadFile(p)
	assert.Equal(t, "v2", string(b))
	noTemp(t, dir)
}

func TestWriteCreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prose", "trial-3")
	_, err := New(nil).Write(context.Background(), dir, "a.xml", strings.NewReader("x"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.xml"))
}

func TestWritePathInvalid(t *testing.T) {
	dir := t.TempDir()
	w := New(nil)
	for _, id := range []contract.ArtifactID{"../bad", "..", "."} {
		_, err := w.Write(context.Background(), dir, id, bytes.NewBufferString("x"))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "id %q", id)
	}
	_, err := w.Write(context.Background(), " ", "a.xml", bytes.NewBufferString("x"))
	assert.ErrorIs(t, err, contract.ErrPathInvalid, "empty root")
}

func TestWriteFlat(t *testing.T) {
	dir := t.TempDir()
	flat := true
	w := New(&Options{Flat: &flat})
	p, err := w.Write(context.Background(), dir, "../../deep/out.json", strings.NewReader("{}"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.json"), p)
}

func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w := New(&Options{Atomic: &a})
	_, err := w.Write(context.Background(), dir, "sub/out.xml", bytes.NewBufferString("v"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "sub", "out.xml"))
}

func TestWriteCtxCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Write(ctx, dir, "a.xml", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	_, err := New(nil).Write(context.Background(), dir, "a.xml", errReader{})
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "temp files left")
}

func TestWriteNonAtomicCopyErrorRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	off := false
	w := New(&Options{Atomic: &off})
	_, err := w.Write(context.Background(), dir, "x.xml", strings.NewReader("old"))
	require.NoError(t, err)
	r := io.MultiReader(strings.NewReader("<TEI><canticum>"), errReader{})
	_, err = w.Write(context.Background(), dir, "x.xml", r)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "x.xml"), "partial file left behind")
}

func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	_, err := r.Read(make([]byte, 1))
	assert.Error(t, err)
}
