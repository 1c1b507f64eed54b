package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"responsio/pkg/contract"
)

// Digest hashes the bytes of every file a Cache over src would read: the
// lyric family files in family order, then the prose documents in walk
// order. Each file is framed by its id so moving text between files
// changes the digest. Editing any corpus file changes the result.
func Digest(ctx context.Context, src Sources, reader contract.Reader) (string, error) {
	fams := src.Families
	if len(fams) == 0 {
		fams = contract.Families
	}
	d := xxhash.New()
	frame := func(id string, r io.Reader) error {
		_, _ = d.WriteString(id)
		_, _ = d.WriteString("\x00")
		n, err := io.Copy(d, r)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(d, "\x00%d\x00", n)
		return nil
	}

	for _, fam := range fams {
		path, err := fam.File(src.LyricDir)
		if err != nil {
			return "", &contract.CorpusLoadError{Kind: contract.KindLyric, Err: err}
		}
		f, err := os.Open(path)
		if err != nil {
			return "", &contract.CorpusLoadError{Kind: contract.KindLyric, Path: path, Err: err}
		}
		err = frame(string(fam), f)
		f.Close()
		if err != nil {
			return "", &contract.CorpusLoadError{Kind: contract.KindLyric, Path: path, Err: err}
		}
	}

	if src.ProseDir == "" {
		return "", &contract.CorpusLoadError{Kind: contract.KindProse, Err: contract.ErrPathInvalid}
	}
	err := reader.Iterate(ctx, []string{src.ProseDir}, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if err := frame(string(fid), rc); err != nil {
			return &contract.CorpusLoadError{Kind: contract.KindProse, Path: string(fid), Err: err}
		}
		return nil
	})
	if err != nil {
		var cle *contract.CorpusLoadError
		if errors.As(err, &cle) {
			return "", cle
		}
		return "", &contract.CorpusLoadError{Kind: contract.KindProse, Path: src.ProseDir, Err: err}
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}
