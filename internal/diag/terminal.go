package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"responsio/pkg/contract"
)

// Terminal prints run progress for humans (not logs).
//   - TTY: one line rewritten in place with \r.
//   - otherwise: a line every tenth of the run.
//
// Safe for concurrent use; after a write error it turns into a no-op.
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	workers  int
	total    int
	done     int
	errCount int
	runStart time.Time
	every    int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// NewTerminal builds a progress printer; enabled=false is always a no-op.
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI logs are not terminals
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// RunStart records the run shape.
func (t *Terminal) RunStart(workers, total, startIndex int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.workers = workers
	t.total = total
	t.done = 0
	t.errCount = 0
	t.runStart = time.Now()
	t.every = total / 10
	if t.every < 1 {
		t.every = 1
	}
	t.println(fmt.Sprintf("[run] trials=%d from=%d | workers=%d", total, startIndex, workers))
}

// TrialDone counts one finished trial and shows its statistics.
func (t *Terminal) TrialDone(st contract.TrialStats) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.done++
	line := fmt.Sprintf("[trial] %d/%d | T_pos prose %.3f lyric %.3f | T_song prose %.3f lyric %.3f | %s",
		t.done, t.total, st.PosProse, st.PosLyric, st.SongProse, st.SongLyric, formatSince(t.runStart))
	if t.isTTY {
		now := time.Now()
		if now.Sub(t.lastFlush) < 100*time.Millisecond && t.done < t.total {
			return
		}
		t.lastFlush = now
		t.printInline(line)
		return
	}
	if t.done%t.every == 0 || t.done == t.total {
		t.println(line)
	}
}

// TrialFailed reports an aborted trial on its own line.
func (t *Terminal) TrialFailed(index int, track, responsion string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.errCount++
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[fail] trial %d | %s %s | %s", index, track, responsion, safe(fmt.Sprint(err))))
}

// RunFinish prints the summary line.
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.println("")
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] trials %d/%d | errors %d | %s", tag, t.done, t.total, t.errCount, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// pad over the tail of a longer previous line
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
