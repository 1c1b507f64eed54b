package trial

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"responsio/internal/score"
	"responsio/pkg/contract"
)

// Sink receives completed trials strictly in index order, so a persisted
// sequence is always a contiguous prefix.
type Sink interface {
	Put(ctx context.Context, st contract.TrialStats, composition map[string]int) error
}

// Result holds one statistic series per baseline family, in trial order.
type Result struct {
	StartIndex  int                   `json:"start_index"`
	Trials      []contract.TrialStats `json:"trials"`
	PosProse    []float64             `json:"t_pos_prose"`
	SongProse   []float64             `json:"t_song_prose"`
	PosLyric    []float64             `json:"t_pos_lyric"`
	SongLyric   []float64             `json:"t_song_lyric"`
	Composition map[string]int        `json:"lyric_composition"`
}

// Add appends one trial and its lyric composition.
func (res *Result) Add(st contract.TrialStats, composition map[string]int) {
	res.Trials = append(res.Trials, st)
	res.PosProse = append(res.PosProse, st.PosProse)
	res.SongProse = append(res.SongProse, st.SongProse)
	res.PosLyric = append(res.PosLyric, st.PosLyric)
	res.SongLyric = append(res.SongLyric, st.SongLyric)
	if len(composition) > 0 && res.Composition == nil {
		res.Composition = map[string]int{}
	}
	for fam, n := range composition {
		res.Composition[fam] += n
	}
}

// Merge appends the trials of a later run.
func (res *Result) Merge(later Result) {
	res.Trials = append(res.Trials, later.Trials...)
	res.PosProse = append(res.PosProse, later.PosProse...)
	res.SongProse = append(res.SongProse, later.SongProse...)
	res.PosLyric = append(res.PosLyric, later.PosLyric...)
	res.SongLyric = append(res.SongLyric, later.SongLyric...)
	if len(later.Composition) > 0 && res.Composition == nil {
		res.Composition = map[string]int{}
	}
	for fam, n := range later.Composition {
		res.Composition[fam] += n
	}
}

// Run executes Randomizations trials starting at StartIndex. On a trial
// error or cancellation it returns the contiguous prefix of completed
// trials together with the error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	n := r.set.Randomizations
	res := Result{StartIndex: r.set.StartIndex, Composition: map[string]int{}}
	if n <= 0 {
		return res, nil
	}
	t := r.logger.StartWithKV("trial", "loop", "", -1, map[string]string{"kind": "all"})
	for _, k := range contract.Kinds {
		if _, err := r.comp.Corpus.Load(ctx, k); err != nil {
			r.logger.Error("trial", "corpus", err.Error(), t.Since())
			return res, err
		}
	}
	r.term.RunStart(r.set.Workers, n, r.set.StartIndex)

	g := &gate{
		ctx:  ctx,
		sink: r.sink,
		out:  make([]outcome, n),
		done: make([]bool, n),
		emit: func(o outcome) {
			res.Add(o.stats, o.composition)
			r.term.TrialDone(o.stats)
		},
	}

	var err error
	if r.set.Workers <= 1 {
		err = r.sequential(ctx, g)
	} else {
		err = r.parallel(ctx, g)
	}
	if err == nil {
		err = g.err
	}
	if err != nil {
		return res, err
	}
	t.Finish("loop", int64(len(res.Trials)))
	return res, nil
}

func (r *Runner) sequential(ctx context.Context, g *gate) error {
	for i := 0; i < len(g.out); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := r.runTrial(ctx, r.set.StartIndex+i)
		if err != nil {
			return err
		}
		if err := g.complete(i, o); err != nil {
			return err
		}
	}
	return nil
}

// parallel runs trials on a bounded errgroup. Each trial owns its scratch
// directory; the corpus is shared read-only.
func (r *Runner) parallel(ctx context.Context, g *gate) error {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(r.set.Workers)
	for i := 0; i < len(g.out); i++ {
		if ectx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			o, err := r.runTrial(ectx, r.set.StartIndex+i)
			if err != nil {
				return err
			}
			return g.complete(i, o)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// gate releases out-of-order completions in index order.
type gate struct {
	ctx  context.Context
	sink Sink
	emit func(outcome)

	mu   sync.Mutex
	out  []outcome
	done []bool
	next int
	err  error
}

func (g *gate) complete(i int, o outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.out[i], g.done[i] = o, true
	for g.next < len(g.out) && g.done[g.next] {
		cur := g.out[g.next]
		if g.sink != nil {
			if err := g.sink.Put(g.ctx, cur.stats, cur.composition); err != nil {
				g.err = err
				return err
			}
		}
		g.emit(cur)
		g.out[g.next] = outcome{}
		g.next++
	}
	return nil
}

// SongScore is one real ode's song statistic.
type SongScore struct {
	Responsion string  `json:"responsion"`
	Song       float64 `json:"t_song"`
}

// Observed is the statistic of the real corpus, the value the baselines
// are compared against.
type Observed struct {
	Pos   float64     `json:"t_pos"`
	Song  float64     `json:"t_song"`
	Songs []SongScore `json:"songs"`
}

// Observe scores the real odes of the responsion set.
func (r *Runner) Observe(ctx context.Context) (Observed, error) {
	var obs Observed
	t := r.logger.Start("observed", "score")
	odes, err := r.comp.Corpus.Load(ctx, contract.KindLyric)
	if err != nil {
		return obs, err
	}
	tally := score.NewTally(r.set.Mode, r.set.CheckMetre)
	for _, id := range r.set.Responsions {
		real, ok := odes.Canticum(id)
		if !ok {
			return obs, &TrialError{Index: -1, Track: contract.KindLyric, Responsion: id, State: StateInit, Err: contract.ErrResponsionNotFound}
		}
		s, err := tally.Add(real)
		if err != nil {
			return obs, &TrialError{Index: -1, Track: contract.KindLyric, Responsion: id, State: StateScore, Err: err}
		}
		obs.Songs = append(obs.Songs, SongScore{Responsion: id, Song: s})
	}
	if obs.Pos, err = tally.PosStat(); err != nil {
		return obs, err
	}
	if obs.Song, err = tally.SongStat(); err != nil {
		return obs, err
	}
	t.Finish("score", int64(len(obs.Songs)))
	return obs, nil
}
