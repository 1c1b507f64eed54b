package contract

import (
	"sort"
)

// Corpus is the immutable reference text a sampler draws from.
// Build it once with NewCorpus and share the pointer; nothing mutates it
// afterwards, so concurrent readers need no locking.
type Corpus struct {
	kind    Kind
	lines   []Line
	lens    []int
	byLen   []int // line indices, longest first, ties in corpus order
	cantica map[string]Canticum
	ids     []string
}

// NewCorpus indexes every line of the given cantica. Each line's Source is
// rewritten to point at its slot in the corpus; Source.Work falls back to
// the strophe responsion, then the canticum id.
func NewCorpus(kind Kind, cantica []Canticum) *Corpus {
	c := &Corpus{kind: kind, cantica: make(map[string]Canticum, len(cantica))}
	for _, can := range cantica {
		if _, dup := c.cantica[can.ID]; !dup {
			c.ids = append(c.ids, can.ID)
		}
		c.cantica[can.ID] = can
		for _, st := range can.Strophes {
			work := st.Responsion
			if work == "" {
				work = can.ID
			}
			for _, l := range st.Lines {
				l.Source = SourceRef{Work: work, Index: len(c.lines)}
				c.lines = append(c.lines, l)
				c.lens = append(c.lens, l.Positions())
			}
		}
	}
	c.byLen = make([]int, len(c.lines))
	for i := range c.byLen {
		c.byLen[i] = i
	}
	sort.SliceStable(c.byLen, func(a, b int) bool { return c.lens[c.byLen[a]] > c.lens[c.byLen[b]] })
	return c
}

// Kind reports the family this corpus serves.
func (c *Corpus) Kind() Kind { return c.kind }

// Len is the number of lines.
func (c *Corpus) Len() int { return len(c.lines) }

// Line returns line i. Callers must not modify its syllables.
func (c *Corpus) Line(i int) Line { return c.lines[i] }

// LineLen returns the position count of line i.
func (c *Corpus) LineLen(i int) int { return c.lens[i] }

// Eligible returns the indices of all lines with at least n positions,
// longest first. The slice aliases corpus storage and must not be modified.
func (c *Corpus) Eligible(n int) []int {
	k := sort.Search(len(c.byLen), func(i int) bool { return c.lens[c.byLen[i]] < n })
	return c.byLen[:k:k]
}

// Exact returns the indices of all lines with exactly n positions.
func (c *Corpus) Exact(n int) []int {
	k := sort.Search(len(c.byLen), func(i int) bool { return c.lens[c.byLen[i]] < n })
	j := sort.Search(k, func(i int) bool { return c.lens[c.byLen[i]] <= n })
	return c.byLen[j:k:k]
}

// Canticum looks up a song by id.
func (c *Corpus) Canticum(id string) (Canticum, bool) {
	can, ok := c.cantica[id]
	return can, ok
}

// IDs lists canticum ids in load order.
func (c *Corpus) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}
