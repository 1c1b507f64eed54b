// Package draw holds the slot-filling loop shared by the baseline samplers.
package draw

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"responsio/pkg/contract"
)

// maxAttempts bounds rejection sampling before falling back to a scan of
// the remaining candidates.
const maxAttempts = 64

// Stream returns the random stream for one Sample call. Distinct
// responsions get distinct streams under the same seed.
func Stream(seed uint64, responsion string) *rand.Rand {
	return rand.New(rand.NewPCG(seed, xxhash.Sum64String(responsion)))
}

// Rules parameterize Fill.
type Rules struct {
	// Candidates lists corpus indices that can serve a slot of n positions.
	Candidates func(n int) []int
	// Exclude rejects every line of a source work.
	Exclude func(work string) bool
	// DistinctWorks forbids two strophes from drawing one slot from the same work.
	DistinctWorks bool
	// Transform post-processes a line already cut to its slot length.
	Transform func(contract.Line) contract.Line
}

// Fill builds a synthetic canticum with the exact shape of real. Every
// corpus line is used at most once.
func Fill(ctx context.Context, real contract.Canticum, corpus *contract.Corpus, rng *rand.Rand, rules Rules) (contract.Canticum, error) {
	if len(real.Strophes) == 0 {
		return contract.Canticum{}, fmt.Errorf("%w: %s has no strophes", contract.ErrInvalidInput, real.ID)
	}
	if corpus == nil {
		return contract.Canticum{}, fmt.Errorf("%w: nil corpus", contract.ErrInvalidInput)
	}
	id := contract.BaselineID(real.ID)
	out := contract.Canticum{ID: id, Strophes: make([]contract.Strophe, len(real.Strophes))}
	used := make(map[int]struct{})
	var slotWorks []map[string]struct{}
	if rules.DistinctWorks {
		slotWorks = make([]map[string]struct{}, maxLines(real))
		for i := range slotWorks {
			slotWorks[i] = make(map[string]struct{}, len(real.Strophes))
		}
	}

	for si, rs := range real.Strophes {
		if err := ctx.Err(); err != nil {
			return contract.Canticum{}, err
		}
		st := contract.Strophe{Type: rs.Type, Responsion: id, Lines: make([]contract.Line, len(rs.Lines))}
		for li, rl := range rs.Lines {
			n := rl.Positions()
			num := rl.N
			if num == "" {
				num = strconv.Itoa(li + 1)
			}
			if n == 0 {
				st.Lines[li] = contract.Line{N: num, Source: contract.SourceRef{Index: -1}}
				continue
			}
			ok := func(i int) bool {
				if _, dup := used[i]; dup {
					return false
				}
				work := corpus.Line(i).Source.Work
				if rules.Exclude != nil && rules.Exclude(work) {
					return false
				}
				if slotWorks != nil {
					if _, dup := slotWorks[li][work]; dup {
						return false
					}
				}
				return true
			}
			cands := rules.Candidates(n)
			pick, found := Pick(rng, cands, ok)
			if !found {
				return contract.Canticum{}, &contract.InsufficientCorpusError{
					Responsion: real.ID,
					Length:     n,
					Needed:     len(real.Strophes),
					Available:  available(real, si, li, cands, ok),
				}
			}
			used[pick] = struct{}{}
			src := corpus.Line(pick)
			if slotWorks != nil {
				slotWorks[li][src.Source.Work] = struct{}{}
			}
			l := src.Tail(n)
			l.N = num
			if rules.Transform != nil {
				l = rules.Transform(l)
			}
			st.Lines[li] = l
		}
		out.Strophes[si] = st
	}
	return out, nil
}

// Pick draws one candidate accepted by ok. Rejection sampling handles the
// common sparse case; a full scan takes over once rejections pile up.
func Pick(rng *rand.Rand, cands []int, ok func(int) bool) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if c := cands[rng.IntN(len(cands))]; ok(c) {
			return c, true
		}
	}
	var free []int
	for _, c := range cands {
		if ok(c) {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return 0, false
	}
	return free[rng.IntN(len(free))], true
}

// available counts the draws a slot could have had: those made by earlier
// strophes plus the candidates still free.
func available(real contract.Canticum, si, li int, cands []int, ok func(int) bool) int {
	n := 0
	for s := 0; s < si; s++ {
		if li < len(real.Strophes[s].Lines) {
			n++
		}
	}
	for _, c := range cands {
		if ok(c) {
			n++
		}
	}
	return n
}

func maxLines(c contract.Canticum) int {
	m := 0
	for _, st := range c.Strophes {
		if len(st.Lines) > m {
			m = len(st.Lines)
		}
	}
	return m
}
