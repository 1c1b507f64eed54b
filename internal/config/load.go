package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"responsio/pkg/contract"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESPONSIO_"

// DefaultSeed is the base seed when none is configured.
const DefaultSeed uint64 = 1453

// Defaults returns a runnable skeleton; corpus dirs have no default.
func Defaults() Config {
	off := false
	return Config{
		Randomizations: 10000,
		Workers:        1,
		BaseSeed:       DefaultSeed,
		Responsions:    cloneStrings(contract.VictoryOdes),
		ScratchDir:     "baselines",
		Aggregate:      "mean",
		CheckMetre:     &off,
		Logging:        Logging{Level: "info"},
		Components: Components{
			Reader:       "fs",
			Decoder:      "tei",
			Writer:       "fs",
			Baseline:     "tei",
			ProseSampler: "prose",
			LyricSampler: "lyric",
		},
	}
}

// Load reads a config file, choosing YAML or JSON by extension.
func Load(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON parses a Config from a path or raw JSON, rejecting unknown fields.
// Absent integer fields whose zero is meaningful come back as -1 so that
// Merge leaves the base value alone.
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := Config{StartIndex: -1}
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML converts a YAML document to JSON and parses it with LoadJSON,
// so both formats share one schema and the same strictness.
func LoadYAML(path string, raw []byte) (Config, error) {
	if len(raw) == 0 {
		if path == "" {
			return Config{StartIndex: -1}, errors.New("no config source provided")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{StartIndex: -1}, err
		}
		raw = b
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{StartIndex: -1}, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Config{StartIndex: -1}, fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", js)
}

// Merge overlays over onto base (later wins). Scalars, strings and raw
// options are replaced whole; nothing is deep-merged.
func Merge(base, over Config) Config {
	out := base
	if over.Randomizations != 0 {
		out.Randomizations = over.Randomizations
	}
	// -1 marks "not set"; 0 is a valid start index.
	if over.StartIndex >= 0 {
		out.StartIndex = over.StartIndex
	}
	if over.Workers != 0 {
		out.Workers = over.Workers
	}
	if over.BaseSeed != 0 {
		out.BaseSeed = over.BaseSeed
	}
	if len(over.Responsions) > 0 {
		out.Responsions = cloneStrings(over.Responsions)
	}
	if s := strings.TrimSpace(over.Corpus.LyricDir); s != "" {
		out.Corpus.LyricDir = s
	}
	if s := strings.TrimSpace(over.Corpus.ProseDir); s != "" {
		out.Corpus.ProseDir = s
	}
	if s := strings.TrimSpace(over.ScratchDir); s != "" {
		out.ScratchDir = s
	}
	if s := strings.TrimSpace(over.Output); s != "" {
		out.Output = s
	}
	if s := strings.TrimSpace(over.Store); s != "" {
		out.Store = s
	}
	if s := strings.TrimSpace(over.Aggregate); s != "" {
		out.Aggregate = s
	}
	if over.CheckMetre != nil {
		v := *over.CheckMetre
		out.CheckMetre = &v
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}

	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Baseline != "" {
		out.Components.Baseline = over.Components.Baseline
	}
	if over.Components.ProseSampler != "" {
		out.Components.ProseSampler = over.Components.ProseSampler
	}
	if over.Components.LyricSampler != "" {
		out.Components.LyricSampler = over.Components.LyricSampler
	}

	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Baseline) > 0 {
		out.Options.Baseline = cloneRaw(over.Options.Baseline)
	}
	if len(over.Options.ProseSampler) > 0 {
		out.Options.ProseSampler = cloneRaw(over.Options.ProseSampler)
	}
	if len(over.Options.LyricSampler) > 0 {
		out.Options.LyricSampler = cloneRaw(over.Options.LyricSampler)
	}
	return out
}

// EnvOverlay builds an override from RESPONSIO_* variables.
// Supported: RANDOMIZATIONS, START_INDEX, WORKERS, BASE_SEED, RESPONSIONS,
// CORPUS_LYRIC_DIR, CORPUS_PROSE_DIR, SCRATCH_DIR, OUTPUT, STORE,
// AGGREGATE, CHECK_METRE, LOG_LEVEL, COMPONENTS_<NAME>, OPTIONS_<NAME>_JSON.
// Empty values are treated as unset; malformed numbers are errors.
func EnvOverlay(environ []string) (Config, error) {
	over := Config{StartIndex: -1}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		bad := func(err error) error { return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err) }
		switch key {
		case "RANDOMIZATIONS":
			v, err := atoi(val)
			if err != nil {
				return over, bad(err)
			}
			over.Randomizations = v
		case "START_INDEX":
			v, err := atoi(val)
			if err != nil {
				return over, bad(err)
			}
			over.StartIndex = v
		case "WORKERS":
			v, err := atoi(val)
			if err != nil {
				return over, bad(err)
			}
			over.Workers = v
		case "BASE_SEED":
			v, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return over, bad(err)
			}
			over.BaseSeed = v
		case "RESPONSIONS":
			over.Responsions = splitComma(val)
		case "CORPUS_LYRIC_DIR":
			over.Corpus.LyricDir = val
		case "CORPUS_PROSE_DIR":
			over.Corpus.ProseDir = val
		case "SCRATCH_DIR":
			over.ScratchDir = val
		case "OUTPUT":
			over.Output = val
		case "STORE":
			over.Store = val
		case "AGGREGATE":
			over.Aggregate = val
		case "CHECK_METRE":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return over, bad(err)
			}
			over.CheckMetre = &b
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_BASELINE":
			over.Components.Baseline = val
		case "COMPONENTS_PROSE_SAMPLER":
			over.Components.ProseSampler = val
		case "COMPONENTS_LYRIC_SAMPLER":
			over.Components.LyricSampler = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_DECODER_JSON":
			over.Options.Decoder = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		case "OPTIONS_BASELINE_JSON":
			over.Options.Baseline = json.RawMessage(val)
		case "OPTIONS_PROSE_SAMPLER_JSON":
			over.Options.ProseSampler = json.RawMessage(val)
		case "OPTIONS_LYRIC_SAMPLER_JSON":
			over.Options.LyricSampler = json.RawMessage(val)
		default:
			// CONFIG_FILE and friends are read by the CLI.
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
