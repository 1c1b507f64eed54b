// Package prose draws baseline strophes from line endings of a prose corpus.
package prose

import (
	"context"

	"responsio/pkg/contract"
	"responsio/plugins/sampler/internal/draw"
)

// Options for the prose sampler.
type Options struct {
	// Exact restricts candidates to lines of exactly the slot length
	// instead of cutting longer lines to their final positions.
	Exact bool `json:"exact"`
	// MarkAnceps flags every drawn syllable anceps, since prose carries
	// no metre to respond to. Default true.
	MarkAnceps *bool `json:"mark_anceps,omitempty"`
}

// Sampler implements contract.Sampler for the prose track.
type Sampler struct {
	exact  bool
	anceps bool
}

func New(opts *Options) *Sampler {
	s := &Sampler{anceps: true}
	if opts != nil {
		s.exact = opts.Exact
		if opts.MarkAnceps != nil {
			s.anceps = *opts.MarkAnceps
		}
	}
	return s
}

var _ contract.Sampler = (*Sampler)(nil)

// Sample fills every slot of real with a distinct prose line ending.
func (s *Sampler) Sample(ctx context.Context, real contract.Canticum, corpus *contract.Corpus, seed uint64) (contract.Canticum, error) {
	rules := draw.Rules{Candidates: corpus.Eligible}
	if s.exact {
		rules.Candidates = corpus.Exact
	}
	if s.anceps {
		rules.Transform = markAnceps
	}
	return draw.Fill(ctx, real, corpus, draw.Stream(seed, real.ID), rules)
}

func markAnceps(l contract.Line) contract.Line {
	for i := range l.Syllables {
		l.Syllables[i].Anceps = true
	}
	return l
}
