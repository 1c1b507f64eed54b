// Package score measures how far the accents of responding strophes allow
// one shared melody, position by position, and reduces those ratios to
// summary statistics.
package score

import (
	"fmt"

	"responsio/pkg/contract"
)

// Mode selects how ratios reduce to one number.
type Mode string

const (
	// Mean averages the ratios.
	Mean Mode = "mean"
	// Binary counts a position as compatible only when every strophe agrees.
	Binary Mode = "binary"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool { return m == Mean || m == Binary }

// ScoreLines returns one ratio per position, grouped by line.
//
// At each position every strophe votes: a single syllable votes for the
// directions its contour allows; a resolved pair votes only for a
// direction both its contours allow and abstains otherwise. The ratio is
// the larger vote over the strophes that did not abstain. A position where
// all strophes abstain has Den == 0. A lone strophe scores 1/1 everywhere.
func ScoreLines(c contract.Canticum) ([][]contract.Ratio, error) {
	if len(c.Strophes) == 0 {
		return nil, fmt.Errorf("%w: %s has no strophes", contract.ErrDegenerateInput, c.ID)
	}
	units, err := align(c)
	if err != nil {
		return nil, err
	}

	out := make([][]contract.Ratio, len(units[0]))
	total := 0
	for li := range units[0] {
		n := len(units[0][li])
		total += n
		out[li] = make([]contract.Ratio, n)
		if len(c.Strophes) == 1 {
			for p := range out[li] {
				out[li][p] = contract.Ratio{Num: 1, Den: 1}
			}
			continue
		}
		contours := make([][]Contour, len(c.Strophes))
		for si := range c.Strophes {
			contours[si] = Contours(c.Strophes[si].Lines[li])
		}
		for p := 0; p < n; p++ {
			var up, down, den int
			for si := range c.Strophes {
				u, d, ok := vote(unitContours(units[si][li], contours[si], p))
				if !ok {
					continue
				}
				den++
				if u {
					up++
				}
				if d {
					down++
				}
			}
			out[li][p] = contract.Ratio{Num: max(up, down), Den: den}
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %s has no positions", contract.ErrDegenerateInput, c.ID)
	}
	return out, nil
}

// ScoreCanticum is ScoreLines flattened in line order.
func ScoreCanticum(c contract.Canticum) ([]contract.Ratio, error) {
	lines, err := ScoreLines(c)
	if err != nil {
		return nil, err
	}
	var out []contract.Ratio
	for _, l := range lines {
		out = append(out, l...)
	}
	return out, nil
}

// unitLayout records, per strophe and line, the syllable offset of each position.
type unitLayout [][][]int

func align(c contract.Canticum) (unitLayout, error) {
	layout := make(unitLayout, len(c.Strophes))
	first := c.Strophes[0]
	for si, st := range c.Strophes {
		if len(st.Lines) != len(first.Lines) {
			return nil, fmt.Errorf("%w: %s strophe %d has %d lines, want %d",
				contract.ErrInvariantViolation, c.ID, si+1, len(st.Lines), len(first.Lines))
		}
		layout[si] = make([][]int, len(st.Lines))
		for li, l := range st.Lines {
			offs := make([]int, 0, len(l.Syllables))
			at := 0
			for _, u := range l.Units() {
				offs = append(offs, at)
				at += len(u)
			}
			layout[si][li] = offs
			if si > 0 && len(offs) != len(layout[0][li]) {
				return nil, fmt.Errorf("%w: %s strophe %d line %s has %d positions, want %d",
					contract.ErrInvariantViolation, c.ID, si+1, l.N, len(offs), len(layout[0][li]))
			}
		}
	}
	return layout, nil
}

// unitContours slices the contours of position p out of a line.
func unitContours(offs []int, contours []Contour, p int) []Contour {
	end := len(contours)
	if p+1 < len(offs) {
		end = offs[p+1]
	}
	return contours[offs[p]:end]
}

// vote reports which directions a position's contours allow; ok is false
// when the unit abstains.
func vote(cs []Contour) (up, down, ok bool) {
	up, down = true, true
	for _, c := range cs {
		up = up && c.Rising()
		down = down && c.Falling()
	}
	return up, down, up || down
}
