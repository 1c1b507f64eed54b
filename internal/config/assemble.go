package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"responsio/internal/corpus"
	"responsio/internal/diag"
	"responsio/internal/score"
	"responsio/internal/trial"
	"responsio/pkg/contract"
	"responsio/pkg/registry"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("responsion", func(fl validator.FieldLevel) bool {
		_, err := contract.ParseResponsion(fl.Field().String())
		return err == nil
	})
}

// Validate checks field bounds, responsion ids and component names.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	for _, id := range cfg.Responsions {
		if _, err := contract.ParseResponsion(id); err != nil {
			return fmt.Errorf("config: responsions: %w", err)
		}
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Baseline, d.Baseline); registry.Baseline[name] == nil {
		return fmt.Errorf("config: baseline %q not registered", name)
	}
	if name := effName(cfg.Components.ProseSampler, d.ProseSampler); registry.Sampler[name] == nil {
		return fmt.Errorf("config: prose_sampler %q not registered", name)
	}
	if name := effName(cfg.Components.LyricSampler, d.LyricSampler); registry.Sampler[name] == nil {
		return fmt.Errorf("config: lyric_sampler %q not registered", name)
	}
	return nil
}

// Assemble validates cfg and builds the run's components and settings.
// Options are decoded strictly by the registry factories. The byte-level
// writer is returned too, for results and other artifacts.
func Assemble(cfg Config, logger *diag.Logger) (trial.Components, trial.Settings, contract.Writer, error) {
	if err := Validate(cfg); err != nil {
		return trial.Components{}, trial.Settings{}, nil, err
	}
	d := Defaults().Components
	fail := func(comp string, err error) (trial.Components, trial.Settings, contract.Writer, error) {
		return trial.Components{}, trial.Settings{}, nil, fmt.Errorf("config: %s options: %w", comp, err)
	}

	rd, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return fail("reader", err)
	}
	dec, err := registry.Decoder[effName(cfg.Components.Decoder, d.Decoder)](cfg.Options.Decoder)
	if err != nil {
		return fail("decoder", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return fail("writer", err)
	}
	bw, err := registry.Baseline[effName(cfg.Components.Baseline, d.Baseline)](cfg.Options.Baseline, w)
	if err != nil {
		return fail("baseline", err)
	}
	ps, err := registry.Sampler[effName(cfg.Components.ProseSampler, d.ProseSampler)](cfg.Options.ProseSampler)
	if err != nil {
		return fail("prose_sampler", err)
	}
	ls, err := registry.Sampler[effName(cfg.Components.LyricSampler, d.LyricSampler)](cfg.Options.LyricSampler)
	if err != nil {
		return fail("lyric_sampler", err)
	}

	cache := corpus.New(corpus.Sources{LyricDir: cfg.Corpus.LyricDir, ProseDir: cfg.Corpus.ProseDir}, rd, dec, logger)
	comp := trial.Components{
		Corpus:       cache,
		Decoder:      dec,
		Baseline:     bw,
		ProseSampler: ps,
		LyricSampler: ls,
	}
	set := trial.Settings{
		Randomizations: cfg.Randomizations,
		StartIndex:     cfg.StartIndex,
		Workers:        cfg.Workers,
		BaseSeed:       cfg.Seed(),
		Responsions:    cloneStrings(cfg.Responsions),
		ScratchDir:     cfg.ScratchDir,
		Mode:           score.Mode(cfg.Aggregate),
		CheckMetre:     cfg.MetreChecked(),
	}
	return comp, set, w, nil
}

// Fingerprint lists the settings that determine trial outcomes, for
// checkpoint keys. Workers and start index are excluded: they change how
// a run is scheduled, not what any trial computes.
func Fingerprint(cfg Config) []string {
	d := Defaults().Components
	return []string{
		fmt.Sprintf("seed=%d", cfg.Seed()),
		"responsions=" + strings.Join(cfg.Responsions, ","),
		"aggregate=" + cfg.Aggregate,
		fmt.Sprintf("check_metre=%t", cfg.MetreChecked()),
		"lyric_dir=" + cfg.Corpus.LyricDir,
		"prose_dir=" + cfg.Corpus.ProseDir,
		"decoder=" + effName(cfg.Components.Decoder, d.Decoder) + string(cfg.Options.Decoder),
		"baseline=" + effName(cfg.Components.Baseline, d.Baseline),
		"prose_sampler=" + effName(cfg.Components.ProseSampler, d.ProseSampler) + string(cfg.Options.ProseSampler),
		"lyric_sampler=" + effName(cfg.Components.LyricSampler, d.LyricSampler) + string(cfg.Options.LyricSampler),
	}
}

// RunFingerprint is Fingerprint plus a digest of the corpus files, so a
// checkpointed run never resumes over an edited corpus.
func RunFingerprint(ctx context.Context, cfg Config) ([]string, error) {
	d := Defaults().Components
	rd, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return nil, fmt.Errorf("config: reader options: %w", err)
	}
	sum, err := corpus.Digest(ctx, corpus.Sources{LyricDir: cfg.Corpus.LyricDir, ProseDir: cfg.Corpus.ProseDir}, rd)
	if err != nil {
		return nil, err
	}
	return append(Fingerprint(cfg), "corpus="+sum), nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
