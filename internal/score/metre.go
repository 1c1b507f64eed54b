package score

import (
	"fmt"

	"responsio/pkg/contract"
)

type quantity int

const (
	qLight quantity = iota
	qHeavy
	qAnceps
)

// canonical maps a line to abstract quantities: a resolved pair counts as
// one heavy, brevis in longo as heavy, anceps as a wildcard.
func canonical(l contract.Line) []quantity {
	units := l.Units()
	out := make([]quantity, 0, len(units))
	for _, u := range units {
		s := u[0]
		switch {
		case len(u) == 2:
			out = append(out, qHeavy)
		case s.Anceps:
			out = append(out, qAnceps)
		case s.BrevisInLongo, s.Weight == contract.Heavy:
			out = append(out, qHeavy)
		default:
			out = append(out, qLight)
		}
	}
	return out
}

// CheckMetre verifies that all strophes respond metrically line by line.
func CheckMetre(c contract.Canticum) error {
	if len(c.Strophes) == 0 {
		return fmt.Errorf("%w: %s has no strophes", contract.ErrDegenerateInput, c.ID)
	}
	ref := c.Strophes[0]
	for li := range ref.Lines {
		lines := make([][]quantity, len(c.Strophes))
		for si, st := range c.Strophes {
			if li >= len(st.Lines) {
				return fmt.Errorf("%w: %s strophe %d lacks line %d", contract.ErrInvariantViolation, c.ID, si+1, li+1)
			}
			lines[si] = canonical(st.Lines[li])
			if len(lines[si]) != len(lines[0]) {
				return fmt.Errorf("%w: %s line %s: strophe %d has %d positions, want %d",
					contract.ErrInvariantViolation, c.ID, ref.Lines[li].N, si+1, len(lines[si]), len(lines[0]))
			}
		}
		for p := range lines[0] {
			seen := qAnceps
			for si := range lines {
				q := lines[si][p]
				if q == qAnceps {
					continue
				}
				if seen != qAnceps && q != seen {
					return fmt.Errorf("%w: %s line %s position %d does not respond",
						contract.ErrInvariantViolation, c.ID, ref.Lines[li].N, p+1)
				}
				seen = q
			}
		}
	}
	return nil
}
