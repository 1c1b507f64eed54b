// Package lyric builds "Frankenstein" baselines: strophes stitched together
// from lines of other odes, so the baseline keeps lyric diction and metre
// without any real responsion.
package lyric

import (
	"context"
	"strings"

	"responsio/pkg/contract"
	"responsio/plugins/sampler/internal/draw"
)

// Options for the lyric sampler.
type Options struct {
	// ExcludeWorks lists additional odes whose lines are never drawn.
	// The ode under test is always excluded.
	ExcludeWorks []string `json:"exclude_works"`
}

// Sampler implements contract.Sampler for the lyric track.
type Sampler struct {
	exclude map[string]struct{}
}

func New(opts *Options) *Sampler {
	s := &Sampler{exclude: map[string]struct{}{}}
	if opts != nil {
		for _, w := range opts.ExcludeWorks {
			if w = strings.TrimSpace(w); w != "" {
				s.exclude[w] = struct{}{}
			}
		}
	}
	return s
}

var _ contract.Sampler = (*Sampler)(nil)

// Sample fills every slot of real from other odes. At one slot no two
// strophes share a source ode.
func (s *Sampler) Sample(ctx context.Context, real contract.Canticum, corpus *contract.Corpus, seed uint64) (contract.Canticum, error) {
	tested := real.ID
	rules := draw.Rules{
		Candidates: corpus.Eligible,
		Exclude: func(work string) bool {
			if work == tested {
				return true
			}
			_, ok := s.exclude[work]
			return ok
		},
		DistinctWorks: true,
	}
	return draw.Fill(ctx, real, corpus, draw.Stream(seed, real.ID), rules)
}

// Composition tallies the source odes of a lyric baseline by family prefix.
func Composition(c contract.Canticum) map[string]int {
	out := map[string]int{}
	for _, st := range c.Strophes {
		for _, l := range st.Lines {
			w := l.Source.Work
			if w == "" {
				continue
			}
			fam := w
			if r, err := contract.ParseResponsion(w); err == nil {
				fam = string(r.Family)
			}
			out[fam]++
		}
	}
	return out
}
