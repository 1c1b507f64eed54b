// Package tei decodes compiled corpus documents:
//
//	<canticum id="...">
//	  <strophe type="strophe" responsion="ol01">
//	    <l n="1"><syll weight="heavy" anceps="True">μῆ</syll><syll weight="light">νιν </syll>...</l>
//
// Strophes are grouped into cantica by their responsion attribute in
// document order. Whitespace between syllables is kept on the preceding
// syllable so word ends survive.
package tei

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"responsio/pkg/contract"
)

// Options for the decoder.
type Options struct {
	// Strict rejects <syll> elements without a weight attribute.
	Strict bool `json:"strict"`
}

// Decoder implements contract.CanticumDecoder.
type Decoder struct {
	strict bool
}

// New creates a decoder; nil opts is valid.
func New(opts *Options) *Decoder {
	d := &Decoder{}
	if opts != nil {
		d.strict = opts.Strict
	}
	return d
}

var _ contract.CanticumDecoder = (*Decoder)(nil)

// ReadFile opens and decodes one document.
func (d *Decoder) ReadFile(ctx context.Context, path string) ([]contract.Canticum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return d.Decode(ctx, contract.NormalizeFileID(path), f)
}

// Decode parses one document. fileID only names anonymous cantica.
func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Canticum, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var (
		out      []contract.Canticum
		index    = map[string]int{}
		canID    string
		anon     int
		strophe  *contract.Strophe
		line     *contract.Line
		syll     *contract.Syllable
		text     strings.Builder
		tokCount int
	)
	for {
		if tokCount++; tokCount%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fileID, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "canticum":
				anon++
				canID = attr(t, "id")
				if canID == "" {
					canID = fmt.Sprintf("%s#%d", fileID, anon)
				}
			case "strophe":
				if strophe != nil {
					return nil, fmt.Errorf("%s: %w: nested <strophe>", fileID, contract.ErrInvalidInput)
				}
				strophe = &contract.Strophe{Type: attr(t, "type"), Responsion: attr(t, "responsion")}
			case "l":
				if strophe == nil {
					continue
				}
				line = &contract.Line{N: attr(t, "n"), Source: contract.SourceRef{Work: attr(t, "source"), Index: -1}}
				if v := attr(t, "source_line"); v != "" {
					if n, err := strconv.Atoi(v); err == nil {
						line.Source.Index = n
					}
				}
			case "syll":
				if line == nil {
					continue
				}
				s, err := d.syllable(t)
				if err != nil {
					return nil, fmt.Errorf("%s: line %q: %w", fileID, line.N, err)
				}
				syll = &s
				text.Reset()
			}
		case xml.CharData:
			switch {
			case syll != nil:
				text.Write(t)
			case line != nil && len(line.Syllables) > 0 && !indentation(t):
				// tail text belongs to the previous syllable
				last := &line.Syllables[len(line.Syllables)-1]
				last.Text += string(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "syll":
				if syll != nil && line != nil {
					syll.Text = text.String()
					line.Syllables = append(line.Syllables, *syll)
				}
				syll = nil
			case "l":
				if line != nil && strophe != nil {
					strophe.Lines = append(strophe.Lines, *line)
				}
				line = nil
			case "strophe":
				if strophe == nil {
					continue
				}
				key := strophe.Responsion
				if key == "" {
					key = canID
				}
				if key == "" {
					key = string(fileID)
				}
				i, ok := index[key]
				if !ok {
					i = len(out)
					index[key] = i
					out = append(out, contract.Canticum{ID: key})
				}
				out[i].Strophes = append(out[i].Strophes, *strophe)
				strophe = nil
			case "canticum":
				canID = ""
			}
		}
	}
	return out, nil
}

func (d *Decoder) syllable(t xml.StartElement) (contract.Syllable, error) {
	s := contract.Syllable{}
	switch w := attr(t, "weight"); w {
	case "heavy":
		s.Weight = contract.Heavy
	case "light":
		s.Weight = contract.Light
	case "":
		if d.strict {
			return s, fmt.Errorf("%w: <syll> without weight", contract.ErrInvalidInput)
		}
	default:
		return s, fmt.Errorf("%w: weight %q", contract.ErrInvalidInput, w)
	}
	s.Anceps = flag(t, "anceps")
	s.Resolution = flag(t, "resolution")
	s.BrevisInLongo = flag(t, "brevis_in_longo")
	return s, nil
}

// indentation reports pretty-printing whitespace: blank and spanning a newline.
func indentation(b []byte) bool {
	s := string(b)
	return strings.ContainsRune(s, '\n') && strings.TrimSpace(s) == ""
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func flag(t xml.StartElement, name string) bool {
	return strings.EqualFold(attr(t, name), "true")
}
