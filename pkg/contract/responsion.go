package contract

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Family is the genre prefix of a responsion id.
type Family string

const (
	Olympian Family = "ol"
	Pythian  Family = "py"
	Nemean   Family = "ne"
	Isthmian Family = "is"
)

// Families lists the enumerated prefix set in corpus load order.
var Families = []Family{Isthmian, Nemean, Olympian, Pythian}

// Valid reports membership in the enumerated set.
func (f Family) Valid() bool {
	switch f {
	case Olympian, Pythian, Nemean, Isthmian:
		return true
	}
	return false
}

// File maps a family to its compiled corpus document under dir.
func (f Family) File(dir string) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrefix, string(f))
	}
	return filepath.Join(dir, "responsion_"+string(f)+"_compiled.xml"), nil
}

// Responsion identifies one song: family prefix plus ode number (e.g. "py04").
type Responsion struct {
	Family Family
	Number int
}

// ParseResponsion validates an id such as "ol01" or "is08".
func ParseResponsion(id string) (Responsion, error) {
	id = strings.TrimSpace(id)
	if len(id) < 3 {
		return Responsion{}, fmt.Errorf("%w: responsion id %q too short", ErrInvalidInput, id)
	}
	fam := Family(strings.ToLower(id[:2]))
	if !fam.Valid() {
		return Responsion{}, fmt.Errorf("%w: %q", ErrUnknownPrefix, id)
	}
	n, err := strconv.Atoi(id[2:])
	if err != nil || n <= 0 {
		return Responsion{}, fmt.Errorf("%w: responsion id %q has no ode number", ErrInvalidInput, id)
	}
	return Responsion{Family: fam, Number: n}, nil
}

// String renders the canonical id ("py04").
func (r Responsion) String() string { return fmt.Sprintf("%s%02d", r.Family, r.Number) }

// File maps the responsion to the corpus document that holds it.
func (r Responsion) File(dir string) (string, error) { return r.Family.File(dir) }

// VictoryOdes is the default responsion set: every epinician ode.
var VictoryOdes = []string{
	"is01", "is02", "is03", "is04", "is05", "is06", "is07", "is08",
	"ne01", "ne02", "ne03", "ne04", "ne05", "ne06", "ne07", "ne08", "ne09", "ne10", "ne11",
	"ol01", "ol02", "ol03", "ol04", "ol05", "ol06", "ol07", "ol08", "ol09", "ol10", "ol11", "ol12", "ol13", "ol14",
	"py01", "py02", "py03", "py04", "py05", "py06", "py07", "py08", "py09", "py10", "py11", "py12",
}
