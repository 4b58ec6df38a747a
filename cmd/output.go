package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/config"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/indexer"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var colorEnabled bool

func paint(color, s string) string {
	if !colorEnabled {
		return s
	}
	return color + s + colorReset
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, paint(colorBold+colorCyan, title))
	fmt.Fprintln(w, paint(colorGray, strings.Repeat("-", 40)))
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", paint(colorGray, fmt.Sprintf("%-14s", label+":")), value)
}

// newLogger builds the process logger from the logging config. Logs go to
// stderr so stdout stays parseable.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// =============================================================================
// Progress Tracking
// =============================================================================

// progressTracker draws a single-line progress bar on a terminal and falls
// back to nothing elsewhere.
type progressTracker struct {
	mu        sync.Mutex
	writer    io.Writer
	enabled   bool
	lastLen   int
	startTime time.Time
}

const progressBarWidth = 30

func newProgressTracker(w io.Writer) *progressTracker {
	enabled := false
	if f, ok := w.(*os.File); ok && !rootJSON {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	return &progressTracker{writer: w, enabled: enabled, startTime: time.Now()}
}

func (p *progressTracker) update(progress indexer.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	filled := progress.Percent * progressBarWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled)
	msg := progress.Message
	if len(msg) > 50 {
		msg = "..." + msg[len(msg)-47:]
	}
	line := fmt.Sprintf("\r[%s] %3d%% %-9s %s", bar, progress.Percent, progress.Stage, msg)
	if p.lastLen > len(line) {
		line += strings.Repeat(" ", p.lastLen-len(line))
	}
	p.lastLen = len(line)
	fmt.Fprint(p.writer, line)
}

func (p *progressTracker) finish() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, "\r"+strings.Repeat(" ", p.lastLen)+"\r")
}

// =============================================================================
// Index Results
// =============================================================================

func printIndexResult(w io.Writer, res *indexer.IndexResult) {
	status := paint(colorGreen, "success")
	switch {
	case res.Cancelled:
		status = paint(colorYellow, "cancelled")
	case !res.Success:
		status = paint(colorRed, "failed")
	}

	heading(w, "Index "+res.ProjectID)
	field(w, "Status", status)
	field(w, "Path", res.Path)
	if res.Mode != "" {
		field(w, "Scan", res.Mode)
	}
	if res.Commit != "" {
		field(w, "Commit", shortHash(res.Commit)+" "+res.Branch)
	}
	field(w, "Files", fmt.Sprintf("%d processed, %d unchanged, %d removed, %d failed",
		res.FilesProcessed, res.FilesUnchanged, res.FilesRemoved, res.FilesFailed))
	field(w, "Symbols", fmt.Sprintf("%d indexed, %d skipped", res.SymbolsIndexed, res.SymbolsSkipped))
	field(w, "Relationships", res.RelationshipsIndexed)
	field(w, "Embeddings", res.EmbeddingsStored)
	field(w, "Duration", res.Duration.Round(time.Millisecond))

	if len(res.Errors) > 0 {
		kinds := make([]string, 0, len(res.Errors))
		for kind := range res.Errors {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w)
		fmt.Fprintln(w, paint(colorYellow, "Errors"))
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %-32s %d\n", kind, res.Errors[kind])
		}
	}
	if res.Message != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Message)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
