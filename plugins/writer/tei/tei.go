// Package tei serializes cantica in the compiled corpus schema so that
// synthetic baselines read back exactly like real odes.
package tei

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"responsio/pkg/contract"
)

// Options controls the document header and layout.
type Options struct {
	// Title goes into teiHeader/fileDesc/titleStmt. Default "Baseline".
	Title string `json:"title"`
	// Indent per nesting level. Default two spaces.
	Indent string `json:"indent"`
}

// Writer implements contract.CanticumWriter over a byte-level writer.
type Writer struct {
	out    contract.Writer
	title  string
	indent string
}

// New wraps out. out is expected to replace files atomically.
func New(opts *Options, out contract.Writer) *Writer {
	w := &Writer{out: out, title: "Baseline", indent: "  "}
	if opts != nil {
		if t := strings.TrimSpace(opts.Title); t != "" {
			w.title = t
		}
		if opts.Indent != "" {
			w.indent = opts.Indent
		}
	}
	return w
}

var _ contract.CanticumWriter = (*Writer)(nil)

// FileName is the document name a canticum is stored under.
func FileName(c contract.Canticum) string { return c.ID + ".xml" }

// WriteCanticum writes dir/<id>.xml and returns its path.
func (w *Writer) WriteCanticum(ctx context.Context, c contract.Canticum, dir string) (string, error) {
	if strings.TrimSpace(c.ID) == "" {
		return "", fmt.Errorf("%w: canticum without id", contract.ErrInvalidInput)
	}
	path := filepath.Join(dir, FileName(c))
	body, err := w.Marshal(c)
	if err != nil {
		return "", &contract.WriteError{Path: path, Err: err}
	}
	p, err := w.out.Write(ctx, dir, contract.ArtifactID(FileName(c)), bytes.NewReader(body))
	if err != nil {
		return "", &contract.WriteError{Path: path, Err: err}
	}
	return p, nil
}

// Marshal renders the full document.
func (w *Writer) Marshal(c contract.Canticum) ([]byte, error) {
	doc := teiDoc{
		Xmlns:  "http://www.tei-c.org/ns/1.0",
		Header: teiHeader{Title: w.title},
		Body:   teiBody{Canticum: toXML(c)},
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", w.indent)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

type teiDoc struct {
	XMLName xml.Name  `xml:"TEI"`
	Xmlns   string    `xml:"xmlns,attr"`
	Header  teiHeader `xml:"teiHeader"`
	Body    teiBody   `xml:"text>body"`
}

type teiHeader struct {
	Title string `xml:"fileDesc>titleStmt>title"`
}

type teiBody struct {
	Canticum xmlCanticum `xml:"canticum"`
}

type xmlCanticum struct {
	ID       string       `xml:"id,attr"`
	Strophes []xmlStrophe `xml:"strophe"`
}

type xmlStrophe struct {
	Type       string    `xml:"type,attr,omitempty"`
	Responsion string    `xml:"responsion,attr,omitempty"`
	Lines      []xmlLine `xml:"l"`
}

type xmlLine struct {
	N          string    `xml:"n,attr,omitempty"`
	Source     string    `xml:"source,attr,omitempty"`
	SourceLine string    `xml:"source_line,attr,omitempty"`
	Sylls      []xmlSyll `xml:"syll"`
}

type xmlSyll struct {
	Weight        string `xml:"weight,attr,omitempty"`
	Anceps        pyBool `xml:"anceps,attr,omitempty"`
	Resolution    pyBool `xml:"resolution,attr,omitempty"`
	BrevisInLongo pyBool `xml:"brevis_in_longo,attr,omitempty"`
	Text          string `xml:",chardata"`
}

// pyBool renders true as "True", the spelling the corpus compiler uses.
// False values are omitted through omitempty.
type pyBool bool

func (b pyBool) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	v := "False"
	if b {
		v = "True"
	}
	return xml.Attr{Name: name, Value: v}, nil
}

func toXML(c contract.Canticum) xmlCanticum {
	xc := xmlCanticum{ID: c.ID, Strophes: make([]xmlStrophe, 0, len(c.Strophes))}
	for _, st := range c.Strophes {
		xs := xmlStrophe{Type: st.Type, Responsion: st.Responsion, Lines: make([]xmlLine, 0, len(st.Lines))}
		for i, l := range st.Lines {
			xl := xmlLine{N: l.N, Source: l.Source.Work, Sylls: make([]xmlSyll, 0, len(l.Syllables))}
			if xl.N == "" {
				xl.N = strconv.Itoa(i + 1)
			}
			if l.Source.Index >= 0 && l.Source.Work != "" {
				xl.SourceLine = strconv.Itoa(l.Source.Index)
			}
			for _, s := range l.Syllables {
				xl.Sylls = append(xl.Sylls, xmlSyll{
					Weight:        string(s.Weight),
					Anceps:        pyBool(s.Anceps),
					Resolution:    pyBool(s.Resolution),
					BrevisInLongo: pyBool(s.BrevisInLongo),
					Text:          s.Text,
				})
			}
			xs.Lines = append(xs.Lines, xl)
		}
		xc.Strophes = append(xc.Strophes, xs)
	}
	return xc
}
