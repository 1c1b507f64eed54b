package contract

// Kind names a baseline family and the reference corpus it draws from.
type Kind string

const (
	KindProse Kind = "prose"
	KindLyric Kind = "lyric"
)

// Kinds lists the families in the order a trial runs them.
var Kinds = []Kind{KindProse, KindLyric}

// Weight is the metrical quantity of a syllable.
type Weight string

const (
	Heavy Weight = "heavy"
	Light Weight = "light"
)

// Syllable is one <syll> of a compiled line.
// Text keeps word-boundary spaces; contour derivation depends on them.
type Syllable struct {
	Text          string
	Weight        Weight
	Anceps        bool
	Resolution    bool
	BrevisInLongo bool
}

// SourceRef records where a corpus line came from.
// Work: responsion id of the ode (lyric) or canticum id of the document (prose).
// Index: position of the line inside its Corpus (-1 when unknown).
type SourceRef struct {
	Work  string
	Index int
}

// Line is an ordered run of syllables.
type Line struct {
	N         string
	Source    SourceRef
	Syllables []Syllable
}

// Unit is one metrical position: a single syllable, or the two syllables
// of a resolved pair.
type Unit []Syllable

// Units groups syllables into positions. Two consecutive syllables marked
// as resolved form one position.
func (l Line) Units() []Unit {
	out := make([]Unit, 0, len(l.Syllables))
	for i := 0; i < len(l.Syllables); {
		s := l.Syllables[i]
		if s.Resolution && i+1 < len(l.Syllables) && l.Syllables[i+1].Resolution {
			out = append(out, Unit{s, l.Syllables[i+1]})
			i += 2
			continue
		}
		out = append(out, Unit{s})
		i++
	}
	return out
}

// Positions counts metrical positions.
func (l Line) Positions() int {
	n := 0
	for i := 0; i < len(l.Syllables); {
		if l.Syllables[i].Resolution && i+1 < len(l.Syllables) && l.Syllables[i+1].Resolution {
			i += 2
		} else {
			i++
		}
		n++
	}
	return n
}

// Tail returns a copy of the line cut to its final n positions.
// Resolved pairs are never split. n >= Positions() returns the whole line.
func (l Line) Tail(n int) Line {
	units := l.Units()
	if n < 0 {
		n = 0
	}
	if n < len(units) {
		units = units[len(units)-n:]
	}
	sylls := make([]Syllable, 0, len(units)+1)
	for _, u := range units {
		sylls = append(sylls, u...)
	}
	return Line{N: l.N, Source: l.Source, Syllables: sylls}
}

// Strophe is one responding unit of a song.
type Strophe struct {
	Type       string
	Responsion string
	Lines      []Line
}

// Canticum groups the responding strophes of one song.
type Canticum struct {
	ID       string
	Strophes []Strophe
}

// Shape is the structural fingerprint a baseline must reproduce:
// strophe count and per-line position counts.
type Shape struct {
	Strophes int
	Lines    []int
}

// Shape reads the line lengths off the first strophe; all strophes respond.
func (c Canticum) Shape() Shape {
	sh := Shape{Strophes: len(c.Strophes)}
	if len(c.Strophes) == 0 {
		return sh
	}
	for _, l := range c.Strophes[0].Lines {
		sh.Lines = append(sh.Lines, l.Positions())
	}
	return sh
}

// Equal reports whether two shapes match exactly.
func (s Shape) Equal(o Shape) bool {
	if s.Strophes != o.Strophes || len(s.Lines) != len(o.Lines) {
		return false
	}
	for i := range s.Lines {
		if s.Lines[i] != o.Lines[i] {
			return false
		}
	}
	return true
}

// BaselineID is the id a synthetic canticum carries for a real responsion.
func BaselineID(responsion string) string { return responsion + "_000" }

// Ratio is the compatibility of one position: Num of Den strophes agree on
// a melodic direction. Den == 0 marks a position the scorer skipped.
type Ratio struct {
	Num int
	Den int
}

// Skipped reports whether the position carries no evidence.
func (r Ratio) Skipped() bool { return r.Den == 0 }

// Float returns Num/Den; skipped positions return 0.
func (r Ratio) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// TrialStats is the outcome of one randomization: one (T_pos, T_song)
// pair per baseline family.
type TrialStats struct {
	Index     int     `json:"index"`
	PosProse  float64 `json:"t_pos_prose"`
	SongProse float64 `json:"t_song_prose"`
	PosLyric  float64 `json:"t_pos_lyric"`
	SongLyric float64 `json:"t_song_lyric"`
}
