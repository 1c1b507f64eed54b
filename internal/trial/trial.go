// Package trial runs randomization trials: for every responsion it samples
// a baseline from each corpus, writes it, reads it back and scores it.
//
//   - One trial runs the prose track, then the lyric track.
//   - A track moves INIT → SAMPLE → WRITE → SCORE → CLEANUP → DONE.
//   - Scratch directories are released on every path.
//   - The outer loop never swallows a trial error.
package trial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"responsio/internal/diag"
	"responsio/internal/score"
	"responsio/pkg/contract"
	"responsio/plugins/sampler/lyric"
)

// CorpusSource hands out the shared read-only corpora.
type CorpusSource interface {
	Load(ctx context.Context, kind contract.Kind) (*contract.Corpus, error)
}

// Components groups the collaborators of a run.
type Components struct {
	Corpus       CorpusSource
	Decoder      contract.CanticumDecoder
	Baseline     contract.CanticumWriter
	ProseSampler contract.Sampler
	LyricSampler contract.Sampler
}

// Settings is the run configuration.
type Settings struct {
	Randomizations int
	StartIndex     int
	Workers        int
	BaseSeed       uint64
	Responsions    []string
	ScratchDir     string
	Mode           score.Mode
	CheckMetre     bool
	// KeepScratch leaves baselines on disk, for inspection.
	KeepScratch bool
}

// State is a track's position in its lifecycle.
type State string

const (
	StateInit    State = "INIT"
	StateSample  State = "SAMPLE"
	StateWrite   State = "WRITE"
	StateScore   State = "SCORE"
	StateCleanup State = "CLEANUP"
	StateDone    State = "DONE"
)

// TrialError locates a failure inside a run.
type TrialError struct {
	Index      int
	Track      contract.Kind
	Responsion string
	State      State
	Err        error
}

func (e *TrialError) Error() string {
	if e.Responsion != "" {
		return fmt.Sprintf("trial %d %s %s [%s]: %v", e.Index, e.Track, e.Responsion, e.State, e.Err)
	}
	return fmt.Sprintf("trial %d %s [%s]: %v", e.Index, e.Track, e.State, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }

// Runner executes trials. It is safe for concurrent RunTrial calls with
// distinct indices.
type Runner struct {
	comp   Components
	set    Settings
	logger *diag.Logger
	term   *diag.Terminal
	sink   Sink
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTerminal reports progress to t.
func WithTerminal(t *diag.Terminal) Option { return func(r *Runner) { r.term = t } }

// WithSink receives completed trials in index order.
func WithSink(s Sink) Option { return func(r *Runner) { r.sink = s } }

// New validates the wiring and returns a Runner. logger may be nil.
func New(comp Components, set Settings, logger *diag.Logger, opts ...Option) (*Runner, error) {
	if comp.Corpus == nil || comp.Decoder == nil || comp.Baseline == nil || comp.ProseSampler == nil || comp.LyricSampler == nil {
		return nil, errors.New("trial: missing components")
	}
	if len(set.Responsions) == 0 {
		return nil, fmt.Errorf("trial: %w: empty responsion set", contract.ErrInvalidInput)
	}
	if set.ScratchDir == "" {
		return nil, fmt.Errorf("trial: %w: scratch dir", contract.ErrPathInvalid)
	}
	if set.Workers < 1 {
		set.Workers = 1
	}
	if set.Mode == "" {
		set.Mode = score.Mean
	}
	if !set.Mode.Valid() {
		return nil, fmt.Errorf("trial: %w: aggregate mode %q", contract.ErrInvalidInput, set.Mode)
	}
	r := &Runner{comp: comp, set: set, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// outcome is one trial's statistics plus its lyric composition.
type outcome struct {
	stats       contract.TrialStats
	composition map[string]int
}

// RunTrial runs both tracks of trial index.
func (r *Runner) RunTrial(ctx context.Context, index int) (contract.TrialStats, error) {
	o, err := r.runTrial(ctx, index)
	return o.stats, err
}

func (r *Runner) runTrial(ctx context.Context, index int) (outcome, error) {
	o := outcome{stats: contract.TrialStats{Index: index}}
	t := r.logger.StartWith("trial", "run", "", index)

	pos, song, _, err := r.track(ctx, index, contract.KindProse, r.comp.ProseSampler)
	if err != nil {
		r.fail(index, err, t)
		return o, err
	}
	o.stats.PosProse, o.stats.SongProse = pos, song

	pos, song, comp, err := r.track(ctx, index, contract.KindLyric, r.comp.LyricSampler)
	if err != nil {
		r.fail(index, err, t)
		return o, err
	}
	o.stats.PosLyric, o.stats.SongLyric = pos, song
	o.composition = comp

	t.Finish("run", int64(2*len(r.set.Responsions)))
	diag.IncOp("trial", "finish", "success")
	diag.ObserveDuration("trial", "finish", t.Elapsed().Milliseconds())
	return o, nil
}

func (r *Runner) fail(index int, err error, t *diag.Timer) {
	code := diag.Classify(err)
	var te *TrialError
	track, resp := "", ""
	if errors.As(err, &te) {
		track, resp = string(te.Track), te.Responsion
	}
	r.logger.ErrorWithKV("trial", string(code), err.Error(), t.Since(), resp, index, map[string]string{"track": track})
	diag.IncOp("trial", "finish", "error")
	diag.IncError("trial", string(code))
	r.term.TrialFailed(index, track, resp, err)
}

// track samples, writes, reads back and scores every responsion for one
// family. It returns (T_pos, T_song) and, for the lyric track, the source
// composition of the baselines.
func (r *Runner) track(ctx context.Context, index int, kind contract.Kind, sampler contract.Sampler) (pos, song float64, comp map[string]int, err error) {
	state := StateInit
	resp := ""
	wrap := func(e error) error {
		return &TrialError{Index: index, Track: kind, Responsion: resp, State: state, Err: e}
	}

	odes, err := r.comp.Corpus.Load(ctx, contract.KindLyric)
	if err != nil {
		return 0, 0, nil, wrap(err)
	}
	source := odes
	if kind != contract.KindLyric {
		if source, err = r.comp.Corpus.Load(ctx, kind); err != nil {
			return 0, 0, nil, wrap(err)
		}
	}
	scratch, err := AcquireScratch(r.set.ScratchDir, kind, index)
	if err != nil {
		return 0, 0, nil, wrap(err)
	}
	defer func() {
		if r.set.KeepScratch {
			return
		}
		state = StateCleanup
		if rerr := scratch.Release(); rerr != nil && err == nil {
			resp = ""
			err = wrap(rerr)
		}
	}()

	seed := Seed(r.set.BaseSeed, kind, index)
	tally := score.NewTally(r.set.Mode, r.set.CheckMetre)
	if kind == contract.KindLyric {
		comp = map[string]int{}
	}
	for _, resp = range r.set.Responsions {
		if err := ctx.Err(); err != nil {
			return 0, 0, nil, wrap(err)
		}
		state = StateInit
		real, ok := odes.Canticum(resp)
		if !ok {
			return 0, 0, nil, wrap(fmt.Errorf("%w: %s", contract.ErrResponsionNotFound, resp))
		}

		state = StateSample
		r.logger.DebugStart("sampler", "sample", resp, index, map[string]string{"kind": string(kind), "seed": strconv.FormatUint(seed, 10)})
		syn, err := sampler.Sample(ctx, real, source, seed)
		if err != nil {
			return 0, 0, nil, wrap(err)
		}

		state = StateWrite
		path, err := r.comp.Baseline.WriteCanticum(ctx, syn, scratch.Dir)
		if err != nil {
			return 0, 0, nil, wrap(err)
		}

		state = StateScore
		back, err := r.readBack(ctx, path, syn.ID)
		if err != nil {
			return 0, 0, nil, wrap(err)
		}
		if _, err := tally.Add(back); err != nil {
			return 0, 0, nil, wrap(err)
		}
		if comp != nil {
			for fam, n := range lyric.Composition(back) {
				comp[fam] += n
			}
		}
	}
	resp = ""
	state = StateScore
	if pos, err = tally.PosStat(); err != nil {
		return 0, 0, nil, wrap(err)
	}
	if song, err = tally.SongStat(); err != nil {
		return 0, 0, nil, wrap(err)
	}
	state = StateDone
	return pos, song, comp, nil
}

// readBack decodes a written baseline, so scoring sees exactly what was
// persisted.
func (r *Runner) readBack(ctx context.Context, path, id string) (contract.Canticum, error) {
	f, err := os.Open(path)
	if err != nil {
		return contract.Canticum{}, err
	}
	defer f.Close()
	cs, err := r.comp.Decoder.Decode(ctx, contract.NormalizeFileID(path), f)
	if err != nil {
		return contract.Canticum{}, err
	}
	for _, c := range cs {
		if c.ID == id {
			return c, nil
		}
	}
	return contract.Canticum{}, fmt.Errorf("%w: %s missing from %s", contract.ErrInvariantViolation, id, path)
}
