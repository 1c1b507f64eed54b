package registry

import (
	"bytes"
	"encoding/json"

	"responsio/pkg/contract"
	rfs "responsio/plugins/reader/filesystem"
	rtei "responsio/plugins/reader/tei"
	slyr "responsio/plugins/sampler/lyric"
	spro "responsio/plugins/sampler/prose"
	wfs "responsio/plugins/writer/filesystem"
	wtei "responsio/plugins/writer/tei"
)

// strictUnmarshal decodes with DisallowUnknownFields; empty input keeps
// the zero value (all defaults).
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader builds a corpus file walker from raw JSON options.
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder builds a corpus document decoder.
type NewDecoder func(raw json.RawMessage) (contract.CanticumDecoder, error)

// NewWriter builds a byte-level artifact writer.
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewBaseline builds a canticum serializer on top of a byte-level writer.
type NewBaseline func(raw json.RawMessage, out contract.Writer) (contract.CanticumWriter, error)

// NewSampler builds a baseline sampler.
type NewSampler func(raw json.RawMessage) (contract.Sampler, error)

// Reader factories (explicit, no reflection).
var Reader = map[string]NewReader{
	// fs: directory walk in lexical order
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder factories.
var Decoder = map[string]NewDecoder{
	// tei: compiled corpus schema
	"tei": func(raw json.RawMessage) (contract.CanticumDecoder, error) {
		var opts rtei.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rtei.New(&opts), nil
	},
}

// Writer factories.
var Writer = map[string]NewWriter{
	// fs: atomic replace by default
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts), nil
	},
}

// Baseline factories.
var Baseline = map[string]NewBaseline{
	"tei": func(raw json.RawMessage, out contract.Writer) (contract.CanticumWriter, error) {
		var opts wtei.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wtei.New(&opts, out), nil
	},
}

// Sampler factories, shared by both tracks.
var Sampler = map[string]NewSampler{
	// prose: line endings of the prose corpus
	"prose": func(raw json.RawMessage) (contract.Sampler, error) {
		var opts spro.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return spro.New(&opts), nil
	},
	// lyric: lines of other odes
	"lyric": func(raw json.RawMessage) (contract.Sampler, error) {
		var opts slyr.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return slyr.New(&opts), nil
	},
}
