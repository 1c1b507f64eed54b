package trial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"responsio/internal/score"
	"responsio/pkg/contract"
	rtei "responsio/plugins/reader/tei"
	slyr "responsio/plugins/sampler/lyric"
	spro "responsio/plugins/sampler/prose"
	wfs "responsio/plugins/writer/filesystem"
	wtei "responsio/plugins/writer/tei"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var words = []string{"ἄ", "ρι", "στον ", "μὲν ", "ὕ", "δωρ ", "ὁ ", "δὲ ", "χρυ", "σὸς "}

func line(seed, n int) contract.Line {
	l := contract.Line{}
	for k := 0; k < n; k++ {
		l.Syllables = append(l.Syllables, contract.Syllable{Text: words[(seed+k)%len(words)], Weight: contract.Heavy})
	}
	return l
}

func ode(id string, strophes int, lens ...int) contract.Canticum {
	c := contract.Canticum{ID: id}
	for s := 0; s < strophes; s++ {
		st := contract.Strophe{Type: "strophe", Responsion: id}
		for i, n := range lens {
			st.Lines = append(st.Lines, line(s*7+i*3+len(id), n))
		}
		c.Strophes = append(c.Strophes, st)
	}
	return c
}

// memCorpus serves prebuilt corpora.
type memCorpus map[contract.Kind]*contract.Corpus

func (m memCorpus) Load(ctx context.Context, kind contract.Kind) (*contract.Corpus, error) {
	if cp, ok := m[kind]; ok {
		return cp, nil
	}
	return nil, &contract.CorpusLoadError{Kind: kind, Err: os.ErrNotExist}
}

func fixtures(proseLen int) memCorpus {
	lyr := contract.NewCorpus(contract.KindLyric, []contract.Canticum{
		ode("ol01", 2, 3, 4), ode("ol02", 2, 3, 4), ode("ol03", 2, 3, 4), ode("py01", 2, 3, 4),
	})
	var docs []contract.Canticum
	for d := 0; d < 4; d++ {
		docs = append(docs, ode(fmt.Sprintf("prose%d", d), 1, proseLen, proseLen+1, proseLen+2))
	}
	return memCorpus{contract.KindLyric: lyr, contract.KindProse: contract.NewCorpus(contract.KindProse, docs)}
}

func components(src CorpusSource) Components {
	return Components{
		Corpus:       src,
		Decoder:      rtei.New(nil),
		Baseline:     wtei.New(nil, wfs.New(nil)),
		ProseSampler: spro.New(nil),
		LyricSampler: slyr.New(nil),
	}
}

func settings(t *testing.T, n int) Settings {
	return Settings{
		Randomizations: n,
		BaseSeed:       1453,
		Responsions:    []string{"ol01", "ol02", "ol03"},
		ScratchDir:     t.TempDir(),
		Mode:           score.Mean,
	}
}

func newRunner(t *testing.T, comp Components, set Settings, opts ...Option) *Runner {
	t.Helper()
	r, err := New(comp, set, nil, opts...)
	require.NoError(t, err)
	return r
}

func TestSeedPure(t *testing.T) {
	a := Seed(1453, contract.KindProse, 7)
	assert.Equal(t, a, Seed(1453, contract.KindProse, 7))
	assert.NotEqual(t, a, Seed(1453, contract.KindLyric, 7))
	assert.NotEqual(t, a, Seed(1453, contract.KindProse, 8))
	assert.NotEqual(t, a, Seed(1454, contract.KindProse, 7))
	seen := map[uint64]bool{}
	for i := 0; i < 1000; i++ {
		s := Seed(0, contract.KindLyric, i)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestScratchLifecycle(t *testing.T) {
	root := t.TempDir()
	s, err := AcquireScratch(root, contract.KindLyric, 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lyric", "trial-3"), s.Dir)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "stale.xml"), []byte("x"), 0o644))

	// reacquiring starts empty
	s, err = AcquireScratch(root, contract.KindLyric, 3)
	require.NoError(t, err)
	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Release())
	_, err = os.Stat(s.Dir)
	assert.True(t, os.IsNotExist(err))

	_, err = AcquireScratch("", contract.KindProse, 0)
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}

func TestNewRejectsBadWiring(t *testing.T) {
	set := settings(t, 1)
	_, err := New(Components{}, set, nil)
	assert.Error(t, err)

	comp := components(fixtures(5))
	bad := set
	bad.Responsions = nil
	_, err = New(comp, bad, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	bad = set
	bad.Mode = "median"
	_, err = New(comp, bad, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestRunTrialBounds(t *testing.T) {
	set := settings(t, 1)
	r := newRunner(t, components(fixtures(5)), set)
	st, err := r.RunTrial(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Index)
	for _, v := range []float64{st.PosProse, st.SongProse, st.PosLyric, st.SongLyric} {
		assert.GreaterOrEqual(t, v, 0.5)
		assert.LessOrEqual(t, v, 1.0)
	}
	// scratch released on success
	for _, k := range contract.Kinds {
		_, err := os.Stat(ScratchDir(set.ScratchDir, k, 4))
		assert.True(t, os.IsNotExist(err), "%s scratch left behind", k)
	}
}

func TestRunDeterministic(t *testing.T) {
	comp := components(fixtures(5))
	a, err := newRunner(t, comp, settings(t, 4)).Run(context.Background())
	require.NoError(t, err)
	b, err := newRunner(t, comp, settings(t, 4)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a.Trials, 4)
	assert.Len(t, a.PosProse, 4)
	assert.Len(t, a.SongLyric, 4)
	// every drawn line is counted: trials x songs x strophes x lines
	total := 0
	for _, n := range a.Composition {
		total += n
	}
	assert.Equal(t, 4*3*2*2, total)
}

func TestRunSplitMatchesWhole(t *testing.T) {
	comp := components(fixtures(5))
	whole, err := newRunner(t, comp, settings(t, 4)).Run(context.Background())
	require.NoError(t, err)

	head := settings(t, 2)
	tail := settings(t, 2)
	tail.StartIndex = 2
	h, err := newRunner(t, comp, head).Run(context.Background())
	require.NoError(t, err)
	tl, err := newRunner(t, comp, tail).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, whole.Trials, append(h.Trials, tl.Trials...))
	h.Merge(tl)
	h.StartIndex = 0
	assert.Equal(t, whole, h)
	assert.Equal(t, 2, tl.StartIndex)
	assert.Equal(t, 2, tl.Trials[0].Index)
}

type recordSink struct {
	mu   sync.Mutex
	got  []int
	fail int
}

func (s *recordSink) Put(ctx context.Context, st contract.TrialStats, _ map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 && len(s.got) == s.fail {
		return errors.New("disk full")
	}
	s.got = append(s.got, st.Index)
	return nil
}

func TestRunParallelMatchesSequential(t *testing.T) {
	comp := components(fixtures(5))
	seq, err := newRunner(t, comp, settings(t, 6)).Run(context.Background())
	require.NoError(t, err)

	set := settings(t, 6)
	set.Workers = 4
	sink := &recordSink{}
	par, err := newRunner(t, comp, set, WithSink(sink)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq.Trials, par.Trials)
	assert.Equal(t, seq.Composition, par.Composition)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, sink.got)
}

func TestRunSinkError(t *testing.T) {
	sink := &recordSink{fail: 2}
	res, err := newRunner(t, components(fixtures(5)), settings(t, 5), WithSink(sink)).Run(context.Background())
	require.Error(t, err)
	assert.Len(t, res.Trials, 2)
}

func TestRunMissingResponsion(t *testing.T) {
	set := settings(t, 3)
	set.Responsions = []string{"ol01", "ne05"}
	res, err := newRunner(t, components(fixtures(5)), set).Run(context.Background())
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.Index)
	assert.Equal(t, contract.KindProse, te.Track)
	assert.Equal(t, "ne05", te.Responsion)
	assert.Equal(t, StateInit, te.State)
	assert.ErrorIs(t, err, contract.ErrResponsionNotFound)
	assert.Empty(t, res.Trials)
	// cleanup ran on the error path
	_, serr := os.Stat(ScratchDir(set.ScratchDir, contract.KindProse, 0))
	assert.True(t, os.IsNotExist(serr))
}

func TestRunInsufficientCorpus(t *testing.T) {
	// prose lines of 1-3 positions cannot fill a 4-position slot
	set := settings(t, 2)
	_, err := newRunner(t, components(fixtures(1)), set).Run(context.Background())
	var te *TrialError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StateSample, te.State)
	var ie *contract.InsufficientCorpusError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 4, ie.Length)
	assertNoScratch(t, set.ScratchDir)
}

func TestRunCorpusLoadError(t *testing.T) {
	src := fixtures(5)
	delete(src, contract.KindProse)
	_, err := newRunner(t, components(src), settings(t, 2)).Run(context.Background())
	var cle *contract.CorpusLoadError
	require.ErrorAs(t, err, &cle)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 3} {
		set := settings(t, 5)
		set.Workers = workers
		res, err := newRunner(t, components(fixtures(5)), set).Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.Trials)
	}
}

// assertNoScratch fails if any trial directory survived under root.
func assertNoScratch(t *testing.T, root string) {
	t.Helper()
	for _, k := range contract.Kinds {
		entries, err := os.ReadDir(filepath.Join(root, string(k)))
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		assert.Empty(t, entries, "scratch left under %s", k)
	}
}

// cancelSink records trials and cancels the run after the first `after`.
type cancelSink struct {
	recordSink
	after  int
	cancel context.CancelFunc
}

func (s *cancelSink) Put(ctx context.Context, st contract.TrialStats, composition map[string]int) error {
	if err := s.recordSink.Put(ctx, st, composition); err != nil {
		return err
	}
	s.mu.Lock()
	n := len(s.got)
	s.mu.Unlock()
	if n == s.after {
		s.cancel()
	}
	return nil
}

func TestRunCancelledMidRun(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers_%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			set := settings(t, 8)
			set.Workers = workers
			sink := &cancelSink{after: 2, cancel: cancel}
			res, err := newRunner(t, components(fixtures(5)), set, WithSink(sink)).Run(ctx)
			require.ErrorIs(t, err, context.Canceled)

			// the completed prefix is kept, contiguous from the first index
			require.GreaterOrEqual(t, len(res.Trials), 2)
			require.Less(t, len(res.Trials), 8)
			for i, st := range res.Trials {
				assert.Equal(t, i, st.Index)
			}
			assert.Len(t, sink.got, len(res.Trials))
			if workers == 1 {
				assert.Len(t, res.Trials, 2)
			}
			assertNoScratch(t, set.ScratchDir)
		})
	}
}

func TestKeepScratch(t *testing.T) {
	set := settings(t, 1)
	set.KeepScratch = true
	_, err := newRunner(t, components(fixtures(5)), set).RunTrial(context.Background(), 0)
	require.NoError(t, err)
	p := filepath.Join(ScratchDir(set.ScratchDir, contract.KindLyric, 0), "ol02_000.xml")
	back, err := rtei.New(nil).ReadFile(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, back, 1)
	for _, st := range back[0].Strophes {
		for _, l := range st.Lines {
			assert.NotEqual(t, "ol02", l.Source.Work)
		}
	}
}

func TestObserve(t *testing.T) {
	set := settings(t, 1)
	obs, err := newRunner(t, components(fixtures(5)), set).Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, obs.Songs, 3)
	assert.Equal(t, "ol01", obs.Songs[0].Responsion)
	assert.GreaterOrEqual(t, obs.Pos, 0.5)
	assert.LessOrEqual(t, obs.Song, 1.0)

	set.Responsions = []string{"is09"}
	_, err = newRunner(t, components(fixtures(5)), set).Observe(context.Background())
	assert.ErrorIs(t, err, contract.ErrResponsionNotFound)
}
