package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "responsio/internal/config"
	"responsio/internal/diag"
	"responsio/internal/store"
	"responsio/internal/trial"
	"responsio/pkg/contract"
)

// Exit codes.
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, a ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, a...)}
}

func runErr(err error) error { return &exitError{code: exitRun, err: err} }

// app holds flag values and the output streams of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	corrID string
	start  time.Time

	configPath     string
	randomizations int
	startIndex     int
	workers        int
	seed           uint64
	responsions    []string
	lyricDir       string
	proseDir       string
	scratchDir     string
	output         string
	storePath      string
	aggregate      string
	checkMetre     bool
	logLevel       string
	logDir         string
	metricsPath    string
	status         bool

	dryTrial   int
	initFormat string
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, corrID: uuid.NewString(), start: time.Now()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if !errors.Is(err, context.Canceled) {
				fmt.Fprintf(stderr, "error: %v\n", ee.err)
			}
			return ee.code
		}
		// flag and usage errors
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitConfig
	}
	return exitOK
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "responsio",
		Short: "Measure strophic responsion in Pindar against randomized baselines",
		Long: `responsio scores how closely the strophes of Pindar's victory odes
respond in pitch contour, then builds randomized baselines from prose and
lyric corpora so the observed score can be read against chance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runBaselines,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (JSON or YAML); defaults to ./config.json or ./config.yaml when present")
	pf.IntVar(&a.randomizations, "randomizations", 0, "number of trials")
	pf.IntVar(&a.startIndex, "start-index", 0, "first trial index")
	pf.IntVar(&a.workers, "workers", 0, "trials run in parallel")
	pf.Uint64Var(&a.seed, "seed", 0, "base seed")
	pf.StringSliceVar(&a.responsions, "responsions", nil, "responsion ids, e.g. ol01,py04")
	pf.StringVar(&a.lyricDir, "lyric-dir", "", "directory of the lyric corpus (one file per family)")
	pf.StringVar(&a.proseDir, "prose-dir", "", "directory of the prose corpus")
	pf.StringVar(&a.scratchDir, "scratch-dir", "", "directory for in-flight baselines")
	pf.StringVar(&a.output, "output", "", "results file; - or empty prints to stdout")
	pf.StringVar(&a.storePath, "store", "", "checkpoint database; enables resume")
	pf.StringVar(&a.aggregate, "aggregate", "", "position aggregation: mean or binary")
	pf.BoolVar(&a.checkMetre, "check-metre", false, "reject strophes that do not respond metrically")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&a.logDir, "log-dir", "logs", "directory for rotated log files")
	pf.StringVar(&a.metricsPath, "metrics", "", "write Prometheus metrics to this file on exit")
	pf.BoolVar(&a.status, "status", true, "progress on stderr")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run randomized baselines (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runBaselines,
	}
	dryCmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Run one trial and keep its baselines on disk",
		Args:  cobra.NoArgs,
		RunE:  a.runDry,
	}
	dryCmd.Flags().IntVar(&a.dryTrial, "trial", 0, "trial index")
	obsCmd := &cobra.Command{
		Use:   "observed",
		Short: "Score the real odes",
		Args:  cobra.NoArgs,
		RunE:  a.runObserved,
	}
	initCmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config and .env template (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runInit,
	}
	initCmd.Flags().StringVar(&a.initFormat, "format", "json", "json or yaml")

	root.AddCommand(runCmd, dryCmd, obsCmd, initCmd)
	return root
}

// loadConfig resolves defaults < file < env < flags and validates.
func (a *app) loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	// .env never overrides the real environment
	if err := cfgpkg.LoadDotEnv(".env"); err != nil {
		return cfgpkg.Config{}, configErr(".env: %w", err)
	}
	path := a.configPath
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		file, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, configErr("config %s: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, file)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("%w", err)
	}
	cfg = cfgpkg.Merge(cfg, env)
	cfg = cfgpkg.Merge(cfg, a.flagOverlay(cmd))
	if err := cfgpkg.Validate(cfg); err != nil {
		a.dumpConfig(cfg)
		return cfg, configErr("%w", err)
	}
	return cfg, nil
}

// flagOverlay applies only flags the user set.
func (a *app) flagOverlay(cmd *cobra.Command) cfgpkg.Config {
	over := cfgpkg.Config{StartIndex: -1}
	set := cmd.Flags().Changed
	if set("randomizations") {
		over.Randomizations = a.randomizations
	}
	if set("start-index") {
		over.StartIndex = a.startIndex
	}
	if set("workers") {
		over.Workers = a.workers
	}
	if set("seed") {
		over.BaseSeed = a.seed
	}
	if set("responsions") {
		over.Responsions = a.responsions
	}
	over.Corpus.LyricDir = a.lyricDir
	over.Corpus.ProseDir = a.proseDir
	over.ScratchDir = a.scratchDir
	over.Output = a.output
	over.Store = a.storePath
	over.Aggregate = a.aggregate
	over.Logging.Level = a.logLevel
	if set("check-metre") {
		v := a.checkMetre
		over.CheckMetre = &v
	}
	return over
}

func (a *app) dumpConfig(cfg cfgpkg.Config) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(a.stderr, "effective config:\n%s\n", b)
}

// setup loads config and assembles components with a logger at the
// configured level. The caller closes the logger.
func (a *app) setup(cmd *cobra.Command) (cfgpkg.Config, *diag.Logger, trial.Components, trial.Settings, contract.Writer, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return cfg, nil, trial.Components{}, trial.Settings{}, nil, err
	}
	logger := diag.NewLoggerIn(a.logDir, a.corrID, cfg.Logging.Level)
	comp, set, w, err := cfgpkg.Assemble(cfg, logger)
	if err != nil {
		logger.Error("cli", string(diag.Classify(err)), err.Error(), &a.start)
		logger.Close()
		return cfg, nil, comp, set, nil, configErr("%w", err)
	}
	logger.DebugStart("config", "effective", "", -1, map[string]string{
		"randomizations": fmt.Sprint(cfg.Randomizations),
		"start_index":    fmt.Sprint(cfg.StartIndex),
		"workers":        fmt.Sprint(cfg.Workers),
		"seed":           fmt.Sprint(cfg.Seed()),
		"responsions":    fmt.Sprint(len(cfg.Responsions)),
		"aggregate":      cfg.Aggregate,
		"check_metre":    fmt.Sprint(cfg.MetreChecked()),
		"lyric_dir":      cfg.Corpus.LyricDir,
		"prose_dir":      cfg.Corpus.ProseDir,
		"store":          cfg.Store,
	})
	return cfg, logger, comp, set, w, nil
}

// report is the results document.
type report struct {
	RunID       string   `json:"run_id"`
	Seed        uint64   `json:"base_seed"`
	Aggregate   string   `json:"aggregate"`
	CheckMetre  bool     `json:"check_metre"`
	Responsions []string `json:"responsions"`
	Resumed     int      `json:"resumed"`
	trial.Result
}

func (a *app) runBaselines(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.flushMetrics()

	cfg, logger, comp, set, w, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	var (
		opts  []trial.Option
		prior []store.Record
	)
	wantStart, wantN := set.StartIndex, set.Randomizations
	if cfg.Store != "" {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return a.failed(logger, runErr(err))
		}
		defer st.Close()
		fp, err := cfgpkg.RunFingerprint(ctx, cfg)
		if err != nil {
			return a.failed(logger, runErr(err))
		}
		key := store.RunKey(fp...)
		if err := st.Begin(ctx, key, strings.Join(fp, ";")); err != nil {
			return a.failed(logger, runErr(err))
		}
		if prior, err = st.Completed(ctx, key, set.StartIndex); err != nil {
			return a.failed(logger, runErr(err))
		}
		if len(prior) > set.Randomizations {
			prior = prior[:set.Randomizations]
		}
		set.StartIndex += len(prior)
		set.Randomizations -= len(prior)
		if len(prior) > 0 {
			logger.Warn("cli", "resume", map[string]string{
				"run":       key,
				"completed": fmt.Sprint(len(prior)),
				"next":      fmt.Sprint(set.StartIndex),
			})
		}
		opts = append(opts, trial.WithSink(st.Sink(key)))
	}

	term := diag.NewTerminal(a.stderr, a.status)
	opts = append(opts, trial.WithTerminal(term))
	r, err := trial.New(comp, set, logger, opts...)
	if err != nil {
		return a.failed(logger, configErr("%w", err))
	}

	t := logger.StartWithKV("cli", "run", "", -1, map[string]string{"trials": fmt.Sprint(wantN)})
	res, err := r.Run(ctx)
	if err != nil {
		term.RunFinish(false, time.Since(a.start))
		return a.failed(logger, runErr(err))
	}
	term.RunFinish(true, time.Since(a.start))

	full := trial.Result{StartIndex: wantStart}
	for _, rec := range prior {
		full.Add(rec.Stats, rec.Composition)
	}
	full.Merge(res)
	doc := report{
		RunID:       a.corrID,
		Seed:        cfg.Seed(),
		Aggregate:   cfg.Aggregate,
		CheckMetre:  cfg.MetreChecked(),
		Responsions: cfg.Responsions,
		Resumed:     len(prior),
		Result:      full,
	}
	if err := a.emit(ctx, w, cfg.Output, doc); err != nil {
		return a.failed(logger, runErr(err))
	}
	t.Finish("run", int64(len(full.Trials)))
	diag.IncOp("cli", "finish", "success")
	diag.ObserveDuration("cli", "finish", time.Since(a.start).Milliseconds())
	return nil
}

func (a *app) runDry(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.flushMetrics()

	_, logger, comp, set, _, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	if a.dryTrial < 0 {
		return configErr("--trial must be >= 0")
	}
	set.KeepScratch = true
	r, err := trial.New(comp, set, logger)
	if err != nil {
		return a.failed(logger, configErr("%w", err))
	}
	st, err := r.RunTrial(ctx, a.dryTrial)
	if err != nil {
		return a.failed(logger, runErr(err))
	}
	out := struct {
		contract.TrialStats
		Scratch map[contract.Kind]string `json:"scratch"`
	}{TrialStats: st, Scratch: map[contract.Kind]string{}}
	for _, k := range contract.Kinds {
		out.Scratch[k] = trial.ScratchDir(set.ScratchDir, k, a.dryTrial)
	}
	return a.printJSON(out)
}

func (a *app) runObserved(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.flushMetrics()

	_, logger, comp, set, _, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	r, err := trial.New(comp, set, logger)
	if err != nil {
		return a.failed(logger, configErr("%w", err))
	}
	obs, err := r.Observe(ctx)
	if err != nil {
		return a.failed(logger, runErr(err))
	}
	return a.printJSON(obs)
}

func (a *app) runInit(_ *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		dir = strings.TrimSpace(args[0])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configErr("init-config: %w", err)
	}
	cfg := cfgpkg.DefaultTemplateConfig()
	var (
		name string
		body []byte
		err  error
	)
	switch strings.ToLower(a.initFormat) {
	case "json":
		name = "config.json"
		body, err = json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		name = "config.yaml"
		body, err = toYAML(cfg)
	default:
		return configErr("init-config: unknown format %q", a.initFormat)
	}
	if err != nil {
		return configErr("init-config: %w", err)
	}
	if err := writeNew(filepath.Join(dir, name), append(body, '\n')); err != nil {
		return configErr("init-config: %w", err)
	}
	if err := writeNew(filepath.Join(dir, ".env"), []byte(cfgpkg.DotEnvTemplate())); err != nil {
		fmt.Fprintf(a.stderr, ".env skipped: %v\n", err)
	}
	fmt.Fprintf(a.stdout, "wrote %s\n", filepath.Join(dir, name))
	return nil
}

// toYAML goes through JSON so keys and raw options keep their JSON shape.
func toYAML(cfg cfgpkg.Config) ([]byte, error) {
	js, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(js, &doc); err != nil {
		return nil, err
	}
	// JSON input parses as flow style; emit block style
	clearStyle(&doc)
	return yaml.Marshal(&doc)
}

func clearStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		clearStyle(c)
	}
}

// writeNew creates path, refusing to overwrite.
func writeNew(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// emit writes the results to path through the configured writer, or to
// stdout when path is empty or "-".
func (a *app) emit(ctx context.Context, w contract.Writer, path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" || path == "-" {
		_, err = a.stdout.Write(b)
		return err
	}
	_, err = w.Write(ctx, filepath.Dir(path), contract.FileID(filepath.Base(path)), bytes.NewReader(b))
	return err
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) failed(logger *diag.Logger, err error) error {
	code := diag.Classify(err)
	logger.Error("cli", string(code), err.Error(), &a.start)
	diag.IncOp("cli", "finish", "error")
	if code != diag.CodeUnknown {
		diag.IncError("cli", string(code))
	}
	return err
}

func (a *app) flushMetrics() {
	if a.metricsPath == "" {
		return
	}
	if err := diag.WriteMetrics(a.metricsPath); err != nil {
		fmt.Fprintf(a.stderr, "metrics: %v\n", err)
	}
}
