package filesystem

import (
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

func collect(t *testing.T, r *FileSystem, roots ...string) []string {
	t.Helper()
	var files []string
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		_, _ = io.ReadAll(rc)
		files = append(files, string(id))
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.xml")
	require.NoError(t, os.WriteFile(fp, []byte("<TEI/>"), 0o644))
	r := New(nil)
	var got []byte
	err := r.Iterate(context.Background(), []string{fp}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		got = append(got, b...)
		assert.Equal(t, contract.NormalizeFileID(fp), id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "<TEI/>", string(got))
}

func TestIterateSingleFileIgnoresExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "herodotus.txt")
	require.NoError(t, os.WriteFile(fp, []byte("x"), 0o644))
	assert.Len(t, collect(t, New(nil), fp), 1)
}

func TestWalkOrderAndExtensions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xml", "a.XML", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	sub := filepath.Join(dir, "z")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.xml"), []byte("x"), 0o644))

	files := collect(t, New(nil), dir)
	require.Len(t, files, 3)
	// directories first, then files in lexical order
	assert.True(t, strings.HasSuffix(files[0], "z/c.xml"))
	assert.True(t, strings.HasSuffix(files[1], "a.XML"))
	assert.True(t, strings.HasSuffix(files[2], "b.xml"))

	txt := collect(t, New(&Options{Extensions: []string{".TXT"}}), dir)
	require.Len(t, txt, 1)
	assert.True(t, strings.HasSuffix(txt[0], "notes.txt"))
}

func TestExcludeDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.xml"), []byte("k"), 0o644))
	skipDir := filepath.Join(dir, "Baseline")
	require.NoError(t, os.Mkdir(skipDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skipDir, "bad.xml"), []byte("b"), 0o644))

	files := collect(t, New(&Options{ExcludeDirNames: []string{"baseline", ""}}), dir)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "keep.xml")
}

func TestIterateMissingRoot(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIterateYieldErrorStops(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte("x"), 0o644))
	boom := errors.New("boom")
	calls := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(_ contract.FileID, rc io.ReadCloser) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIterateCtxCancel(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.xml")
	require.NoError(t, os.WriteFile(fp, []byte("x"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBufferedCloserDefault(t *testing.T) {
	bc := newBufferedCloser(io.NopCloser(strings.NewReader("")), 0)
	assert.NotNil(t, bc.Reader)
	assert.NoError(t, bc.Close())
}
