package config

import (
	"encoding/json"
)

// Config is parsed once and read-only afterwards.
// JSON/YAML keys are snake_case; unknown fields fail at parse time.
type Config struct {
	// Randomizations is the number of trials per run.
	Randomizations int `json:"randomizations" validate:"gte=1"`
	// StartIndex is the first trial index. Trial seeds derive from the
	// index, so a run split at k reproduces the unsplit run.
	StartIndex int `json:"start_index" validate:"gte=0"`
	// Workers > 1 runs trials in parallel.
	Workers int `json:"workers" validate:"gte=1,lte=256"`
	// BaseSeed feeds every trial seed. Zero selects the default.
	BaseSeed uint64 `json:"base_seed"`
	// Responsions is the song set sampled per trial.
	Responsions []string `json:"responsions" validate:"min=1,dive,responsion"`

	Corpus Corpus `json:"corpus"`
	// ScratchDir holds one subtree per family for in-flight baselines.
	ScratchDir string `json:"scratch_dir" validate:"required"`
	// Output is the results JSON path; empty prints to stdout.
	Output string `json:"output"`
	// Store is the checkpoint database; empty disables resume.
	Store string `json:"store"`

	// Aggregate selects mean or binary position aggregation.
	Aggregate string `json:"aggregate" validate:"oneof=mean binary"`
	// CheckMetre rejects baselines whose strophes do not respond metrically.
	CheckMetre *bool `json:"check_metre,omitempty"`

	Logging Logging `json:"logging"`

	// Component names (empty means default).
	Components Components `json:"components"`
	// Raw JSON options handed to each factory.
	Options Options `json:"options"`
}

// Corpus locates the two reference corpora.
type Corpus struct {
	LyricDir string `json:"lyric_dir" validate:"required"`
	ProseDir string `json:"prose_dir" validate:"required"`
}

// Logging: only the level is configurable; path and rotation are fixed.
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Components names registry implementations.
type Components struct {
	Reader       string `json:"reader"`
	Decoder      string `json:"decoder"`
	Writer       string `json:"writer"`
	Baseline     string `json:"baseline"`
	ProseSampler string `json:"prose_sampler"`
	LyricSampler string `json:"lyric_sampler"`
}

// Options holds each component's raw JSON options.
type Options struct {
	Reader       json.RawMessage `json:"reader,omitempty"`
	Decoder      json.RawMessage `json:"decoder,omitempty"`
	Writer       json.RawMessage `json:"writer,omitempty"`
	Baseline     json.RawMessage `json:"baseline,omitempty"`
	ProseSampler json.RawMessage `json:"prose_sampler,omitempty"`
	LyricSampler json.RawMessage `json:"lyric_sampler,omitempty"`
}

// MetreChecked reports the effective check_metre value.
func (c Config) MetreChecked() bool { return c.CheckMetre != nil && *c.CheckMetre }

// Seed is the effective base seed.
func (c Config) Seed() uint64 {
	if c.BaseSeed == 0 {
		return DefaultSeed
	}
	return c.BaseSeed
}
