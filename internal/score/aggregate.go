package score

import (
	"fmt"

	"responsio/pkg/contract"
)

// Aggregate reduces ratios to one statistic. Skipped positions carry no
// evidence and are left out; nothing left to average is an error.
func Aggregate(ratios []contract.Ratio, mode Mode) (float64, error) {
	var sum float64
	n := 0
	for _, r := range ratios {
		if r.Skipped() {
			continue
		}
		n++
		switch mode {
		case Binary:
			if r.Num == r.Den {
				sum++
			}
		case Mean, "":
			sum += r.Float()
		default:
			return 0, fmt.Errorf("%w: aggregate mode %q", contract.ErrInvalidInput, mode)
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no scored positions", contract.ErrDegenerateInput)
	}
	return sum / float64(n), nil
}

// Tally accumulates one trial's songs for both granularities.
// The zero value is not usable; use NewTally.
type Tally struct {
	mode       Mode
	checkMetre bool
	pooled     []contract.Ratio
	songs      []float64
}

// NewTally creates a tally. checkMetre rejects songs whose strophes do not
// respond metrically.
func NewTally(mode Mode, checkMetre bool) *Tally {
	if mode == "" {
		mode = Mean
	}
	return &Tally{mode: mode, checkMetre: checkMetre}
}

// Add scores one song and returns its song-level statistic.
func (t *Tally) Add(c contract.Canticum) (float64, error) {
	if t.checkMetre {
		if err := CheckMetre(c); err != nil {
			return 0, err
		}
	}
	ratios, err := ScoreCanticum(c)
	if err != nil {
		return 0, err
	}
	song, err := Aggregate(ratios, t.mode)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", c.ID, err)
	}
	t.pooled = append(t.pooled, ratios...)
	t.songs = append(t.songs, song)
	return song, nil
}

// Songs is the number of songs added.
func (t *Tally) Songs() int { return len(t.songs) }

// PosStat aggregates every position of every song as one pool.
func (t *Tally) PosStat() (float64, error) { return Aggregate(t.pooled, t.mode) }

// SongStat is the mean of the per-song statistics.
func (t *Tally) SongStat() (float64, error) {
	if len(t.songs) == 0 {
		return 0, fmt.Errorf("%w: no songs scored", contract.ErrDegenerateInput)
	}
	var sum float64
	for _, s := range t.songs {
		sum += s
	}
	return sum / float64(len(t.songs)), nil
}
