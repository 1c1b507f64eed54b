package score

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"responsio/pkg/contract"
)

// Contour is the melodic movement a syllable's accent allows into the next note.
type Contour string

const (
	Up       Contour = "UP"   // rise towards the accent
	UpGrave  Contour = "UP-G" // small rise or repetition after a grave or proclitic
	Down     Contour = "DN"   // fall after the accent
	DownMain Contour = "DN-A" // fall right after the main acute or circumflex
	Free     Contour = "N"    // word end, any continuation
)

// Rising reports membership in the up-compatible set.
func (c Contour) Rising() bool { return c == Up || c == UpGrave || c == Free }

// Falling reports membership in the down-compatible set.
func (c Contour) Falling() bool { return c == Down || c == DownMain || c == Free }

const (
	combAcute      = '\u0301'
	combGrave      = '\u0300'
	combCircumflex = '\u0342' // perispomeni
)

var enclitics = set(
	"τε", "τοι", "γε", "περ", "νυν", "νιν", "μιν", "θην", "κε", "κεν", "ρα", "ῥα",
	"μοι", "μου", "με", "σοι", "σου", "σε", "οἱ", "τις", "τι", "τινα", "τινι", "τινος",
	"που", "ποι", "πη", "πως", "ποτε", "ποθι", "ἐστι", "ἐστιν", "εἰμι", "φημι",
)

var proclitics = set(
	"ὁ", "ἡ", "οἱ", "αἱ", "ἐν", "εἰς", "ἐς", "ἐκ", "ἐξ", "εἰ", "ὡς", "οὐ", "οὐκ", "οὐχ",
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[norm.NFC.String(w)] = struct{}{}
	}
	return m
}

type accent struct {
	main  bool // acute or circumflex
	grave bool
}

func accentOf(text string) accent {
	var a accent
	for _, r := range norm.NFD.String(text) {
		switch r {
		case combAcute, combCircumflex:
			a.main = true
		case combGrave:
			a.grave = true
		}
	}
	return a
}

// bare strips whitespace and punctuation and folds case.
func bare(text string) string {
	t := strings.TrimFunc(text, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) })
	return norm.NFC.String(strings.ToLower(t))
}

func isEnclitic(word string) bool {
	_, enc := enclitics[word]
	_, pro := proclitics[word]
	return enc && !pro
}

func isProclitic(word string) bool {
	_, ok := proclitics[word]
	return ok
}

func endsWord(text string) bool {
	return text != "" && unicode.IsSpace(lastRune(text))
}

func startsWord(text string) bool {
	return text != "" && unicode.IsSpace([]rune(text)[0])
}

func lastRune(s string) rune {
	r := []rune(s)
	return r[len(r)-1]
}

// Contours derives one contour per syllable of a line. Word ends come from
// whitespace in the syllable texts; the last syllable of a line always ends
// a word. Clitics are recognized only when a syllable is a whole word.
func Contours(l contract.Line) []Contour {
	sylls := l.Syllables
	out := make([]Contour, 0, len(sylls))
	preAccent := true
	var lastContour Contour

	for i, s := range sylls {
		wordEnd := i == len(sylls)-1 || endsWord(s.Text) || startsWord(sylls[i+1].Text)
		wordStart := i == 0 || endsWord(sylls[i-1].Text) || startsWord(s.Text)
		firstOfPair := i+1 < len(sylls) && sylls[i+1].Resolution

		if firstOfPair && wordEnd {
			preAccent = true
		}

		word := ""
		if wordStart && wordEnd {
			word = bare(s.Text)
		}
		if word != "" && isEnclitic(word) && len(out) > 0 && out[len(out)-1] == Free {
			// the enclitic throws its accent back: the host keeps its own contour
			out[len(out)-1] = lastContour
			preAccent = false
		}

		acc := accentOf(s.Text)
		var c Contour
		switch {
		case acc.main && preAccent:
			c = DownMain
			preAccent = false
		case acc.main:
			c = Down
		case preAccent:
			c = Up
		default:
			c = Down
		}

		if wordEnd {
			lastContour = c
			c = Free
			preAccent = true
		}
		if (word != "" && isProclitic(word)) || acc.grave {
			c = UpGrave
		}
		out = append(out, c)
	}
	return out
}
