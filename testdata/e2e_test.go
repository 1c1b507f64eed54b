package testdata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	cfgpkg "responsio/internal/config"
	"responsio/internal/store"
	"responsio/internal/trial"
	"responsio/pkg/contract"
)

var fixtureOdes = []string{"is01", "ne02", "ol01", "ol03", "py02"}

func baseConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Corpus = cfgpkg.Corpus{
		LyricDir: filepath.Join("corpus", "lyric"),
		ProseDir: filepath.Join("corpus", "prose"),
	}
	cfg.Responsions = fixtureOdes
	cfg.ScratchDir = t.TempDir()
	cfg.Randomizations = 6
	cfg.Logging.Level = "error"
	return cfg
}

func newRunner(t *testing.T, cfg cfgpkg.Config, opts ...trial.Option) *trial.Runner {
	t.Helper()
	comp, set, _, err := cfgpkg.Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	r, err := trial.New(comp, set, nil, opts...)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return r
}

func inUnit(t *testing.T, name string, v float64) {
	t.Helper()
	if v < 0 || v > 1 {
		t.Fatalf("%s = %v outside [0,1]", name, v)
	}
}

func TestE2EObserved(t *testing.T) {
	obs, err := newRunner(t, baseConfig(t)).Observe(context.Background())
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(obs.Songs) != len(fixtureOdes) {
		t.Fatalf("songs = %d", len(obs.Songs))
	}
	inUnit(t, "t_pos", obs.Pos)
	inUnit(t, "t_song", obs.Song)
	for _, s := range obs.Songs {
		inUnit(t, s.Responsion, s.Song)
	}
}

func TestE2EBaselines(t *testing.T) {
	cfg := baseConfig(t)
	seq, err := newRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seq.Trials) != cfg.Randomizations {
		t.Fatalf("trials = %d", len(seq.Trials))
	}
	for i, st := range seq.Trials {
		if st.Index != i {
			t.Fatalf("trial %d has index %d", i, st.Index)
		}
		inUnit(t, "t_pos_prose", st.PosProse)
		inUnit(t, "t_song_prose", st.SongProse)
		inUnit(t, "t_pos_lyric", st.PosLyric)
		inUnit(t, "t_song_lyric", st.SongLyric)
	}
	// lyric lines are drawn from several families
	if len(seq.Composition) < 2 {
		t.Fatalf("composition = %v", seq.Composition)
	}

	cfg.Workers = 3
	par, err := newRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}
	a, _ := json.Marshal(seq)
	b, _ := json.Marshal(par)
	if string(a) != string(b) {
		t.Fatalf("parallel differs from sequential\n%s\n%s", a, b)
	}
}

// countingWriter records every baseline written, by track.
type countingWriter struct {
	contract.CanticumWriter
	mu    sync.Mutex
	paths map[contract.Kind][]string
}

func (w *countingWriter) WriteCanticum(ctx context.Context, c contract.Canticum, dir string) (string, error) {
	p, err := w.CanticumWriter.WriteCanticum(ctx, c, dir)
	if err == nil {
		w.mu.Lock()
		w.paths[trackOf(p)] = append(w.paths[trackOf(p)], p)
		w.mu.Unlock()
	}
	return p, err
}

// countingDecoder records every read-back, by track.
type countingDecoder struct {
	contract.CanticumDecoder
	mu    sync.Mutex
	reads map[contract.Kind]int
}

func (d *countingDecoder) Decode(ctx context.Context, fid contract.FileID, r io.Reader) ([]contract.Canticum, error) {
	d.mu.Lock()
	d.reads[trackOf(string(fid))]++
	d.mu.Unlock()
	return d.CanticumDecoder.Decode(ctx, fid, r)
}

// trackOf reads the kind out of root/<kind>/trial-<n>/<file>.
func trackOf(p string) contract.Kind {
	return contract.Kind(filepath.Base(filepath.Dir(filepath.Dir(filepath.FromSlash(p)))))
}

func TestE2ESingleTrialPythianFour(t *testing.T) {
	id, err := contract.ParseResponsion("py04")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	file, err := id.File(filepath.Join("corpus", "lyric"))
	if err != nil || filepath.Base(file) != "responsion_py_compiled.xml" {
		t.Fatalf("py04 maps to %q (%v)", file, err)
	}

	cfg := baseConfig(t)
	cfg.Responsions = []string{"py04"}
	cfg.Randomizations = 1
	comp, set, _, err := cfgpkg.Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	w := &countingWriter{CanticumWriter: comp.Baseline, paths: map[contract.Kind][]string{}}
	d := &countingDecoder{CanticumDecoder: comp.Decoder, reads: map[contract.Kind]int{}}
	comp.Baseline, comp.Decoder = w, d
	r, err := trial.New(comp, set, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trials) != 1 {
		t.Fatalf("trials = %d", len(res.Trials))
	}
	for _, kind := range []contract.Kind{contract.KindProse, contract.KindLyric} {
		paths := w.paths[kind]
		if len(paths) != 1 || filepath.Base(paths[0]) != "py04_000.xml" {
			t.Fatalf("%s writes = %v", kind, paths)
		}
		if d.reads[kind] != 1 {
			t.Fatalf("%s read-backs = %d", kind, d.reads[kind])
		}
		if _, err := os.Stat(trial.ScratchDir(cfg.ScratchDir, kind, 0)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s scratch left behind: %v", kind, err)
		}
	}
}

func TestE2EBinaryMode(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Aggregate = "binary"
	cfg.Randomizations = 2
	res, err := newRunner(t, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, st := range res.Trials {
		inUnit(t, "t_pos_lyric", st.PosLyric)
	}
}

func TestE2EResumeFromStore(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig(t)
	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	fp, err := cfgpkg.RunFingerprint(ctx, cfg)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	key := store.RunKey(fp...)

	head := cfg
	head.Randomizations = 4
	if _, err := newRunner(t, head, trial.WithSink(db.Sink(key))).Run(ctx); err != nil {
		t.Fatalf("head run: %v", err)
	}
	done, err := db.Completed(ctx, key, 0)
	if err != nil || len(done) != 4 {
		t.Fatalf("completed = %d (%v)", len(done), err)
	}

	tail := cfg
	tail.StartIndex = len(done)
	tail.Randomizations = cfg.Randomizations - len(done)
	rest, err := newRunner(t, tail).Run(ctx)
	if err != nil {
		t.Fatalf("tail run: %v", err)
	}
	whole, err := newRunner(t, cfg).Run(ctx)
	if err != nil {
		t.Fatalf("whole run: %v", err)
	}
	joined := trial.Result{}
	for _, rec := range done {
		joined.Add(rec.Stats, rec.Composition)
	}
	joined.Merge(rest)
	a, _ := json.Marshal(whole)
	b, _ := json.Marshal(joined)
	if string(a) != string(b) {
		t.Fatalf("resumed run differs\n%s\n%s", a, b)
	}
}

func TestE2EEditedCorpusStartsFresh(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	if err := os.CopyFS(root, os.DirFS("corpus")); err != nil {
		t.Fatalf("copy corpus: %v", err)
	}
	cfg := baseConfig(t)
	cfg.Corpus = cfgpkg.Corpus{
		LyricDir: filepath.Join(root, "lyric"),
		ProseDir: filepath.Join(root, "prose"),
	}
	cfg.Randomizations = 2
	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	fp, err := cfgpkg.RunFingerprint(ctx, cfg)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	before := store.RunKey(fp...)
	if _, err := newRunner(t, cfg, trial.WithSink(db.Sink(before))).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	// same directories, edited document
	doc := filepath.Join(root, "prose", "lysias.xml")
	b, err := os.ReadFile(doc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(doc, append(b, '\n'), 0o644); err != nil {
		t.Fatalf("edit: %v", err)
	}
	fp, err = cfgpkg.RunFingerprint(ctx, cfg)
	if err != nil {
		t.Fatalf("fingerprint after edit: %v", err)
	}
	after := store.RunKey(fp...)
	if after == before {
		t.Fatalf("run key unchanged after corpus edit")
	}
	done, err := db.Completed(ctx, after, 0)
	if err != nil || len(done) != 0 {
		t.Fatalf("edited corpus resumes %d old trials (%v)", len(done), err)
	}
	if old, _ := db.Completed(ctx, before, 0); len(old) != 2 {
		t.Fatalf("original run lost its checkpoints: %d", len(old))
	}
}

func TestE2EMissingCorpus(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Corpus.LyricDir = t.TempDir()
	_, err := newRunner(t, cfg).Run(context.Background())
	var cle *contract.CorpusLoadError
	if !errors.As(err, &cle) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want corpus load error for a missing family file, got %v", err)
	}
}
