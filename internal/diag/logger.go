package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level orders log severities.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger writes single-line JSON events. Every event carries the run's
// corr_id, a component and a stage (start|finish|error).
type Logger struct {
	corrID string
	level  Level
	z      *zap.Logger
	sink   *RotatingFile
}

// NewLogger logs into logs/responsio-current.log, rotated at 10MiB.
func NewLogger(corrID, level string) *Logger {
	return NewLoggerIn("logs", corrID, level)
}

// NewLoggerIn is NewLogger with an explicit log directory.
func NewLoggerIn(dir, corrID, level string) *Logger {
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo logs into ws; nil ws means stderr.
func NewLoggerTo(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	if ws == nil {
		ws = zapcore.Lock(os.Stderr)
	}
	lvl := parseLevel(strings.TrimSpace(level))
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTime,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, ws, lvl.zap())
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, level: lvl, z: z}
}

func utcTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event is the standard event shape.
type Event struct {
	Comp       string
	Stage      string // start|finish|error
	Code       string
	DurMS      int64
	Count      int64
	Responsion string
	Trial      int // -1 when not tied to a trial
	Msg        string
	KV         map[string]string
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	fields := make([]zap.Field, 0, 8)
	fields = append(fields, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fields = append(fields, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	if ev.Responsion != "" {
		fields = append(fields, zap.String("responsion", ev.Responsion))
	}
	if ev.Trial >= 0 {
		fields = append(fields, zap.Int("trial", ev.Trial))
	}
	if len(ev.KV) > 0 {
		fields = append(fields, zap.Any("kv", ev.KV))
	}
	if ce := l.z.Check(lv.zap(), ev.Msg); ce != nil {
		ce.Write(fields...)
	}
}

// Start logs a start event and returns the timer for Finish.
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Trial: -1, Msg: msg})
	return &Timer{l: l, comp: comp, trial: -1, t0: time.Now()}
}

// StartWith logs a start tied to a responsion and trial index.
func (l *Logger) StartWith(comp, msg, responsion string, trial int) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Responsion: responsion, Trial: trial, Msg: msg})
	return &Timer{l: l, comp: comp, responsion: responsion, trial: trial, t0: time.Now()}
}

// StartWithKV is StartWith plus key/values.
func (l *Logger) StartWithKV(comp, msg, responsion string, trial int, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Responsion: responsion, Trial: trial, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, responsion: responsion, trial: trial, t0: time.Now()}
}

// Error logs an error event.
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "", -1)
}

// ErrorWith logs an error tied to a responsion and trial index.
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, responsion string, trial int) {
	l.ErrorWithKV(comp, code, msg, durSince, responsion, trial, nil)
}

// ErrorWithKV is ErrorWith plus key/values.
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, responsion string, trial int, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Responsion: responsion, Trial: trial, Msg: msg, KV: kv})
}

// Warn logs a non-fatal condition.
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "finish", Trial: -1, Msg: msg, KV: kv})
}

// InfoFinish logs a finish for a start taken elsewhere.
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Trial: -1, Msg: msg})
}

// DebugStart logs a debug-level start event.
func (l *Logger) DebugStart(comp, msg, responsion string, trial int, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", Responsion: responsion, Trial: trial, Msg: msg, KV: kv})
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Timer measures start→finish.
type Timer struct {
	l          *Logger
	comp       string
	responsion string
	trial      int
	t0         time.Time
}

// Since returns the timer's start, for error events.
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// Finish logs a finish event with an optional count.
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count,
		Responsion: t.responsion, Trial: t.trial, Msg: msg})
}

// Elapsed is the time since Start.
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
