// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/docmemory/internal/search"
	"github.com/Aman-CERP/docmemory/internal/store"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	title lipgloss.Style
	score lipgloss.Style
	dim   lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
}

// New creates a new output Writer. Color is used only for terminals
// without NO_COLOR set.
func New(out io.Writer) *Writer {
	return NewWithColor(out, detectColor(out))
}

// NewWithColor creates a Writer with explicit color choice.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	r := lipgloss.NewRenderer(out)
	w := &Writer{out: out, useColor: useColor}
	if !useColor {
		plain := r.NewStyle()
		w.title, w.score, w.dim, w.ok, w.warn, w.fail = plain, plain, plain, plain, plain, plain
		return w
	}
	w.title = r.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	w.score = r.NewStyle().Foreground(lipgloss.Color("220"))
	w.dim = r.NewStyle().Foreground(lipgloss.Color("245"))
	w.ok = r.NewStyle().Foreground(lipgloss.Color("42"))
	w.warn = r.NewStyle().Foreground(lipgloss.Color("220"))
	w.fail = r.NewStyle().Foreground(lipgloss.Color("196"))
	return w
}

func detectColor(out io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.ok.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.warn.Render("⚠"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.fail.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Hits prints ranked search hits.
func (w *Writer) Hits(hits []search.Hit) {
	if len(hits) == 0 {
		w.Status("", w.dim.Render("No results."))
		return
	}
	for i, h := range hits {
		title := h.Title
		if title == "" {
			title = h.ID
		}
		_, _ = fmt.Fprintf(w.out, "%d. %s  %s\n", i+1, w.title.Render(title), w.score.Render(fmt.Sprintf("%.3f", h.Score)))
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.dim.Render(hitMeta(h)))
		if h.Snippet != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", strings.ReplaceAll(h.Snippet, "\n", " "))
		}
	}
}

func hitMeta(h search.Hit) string {
	parts := []string{h.ID}
	if h.SourceFile != "" {
		parts = append(parts, h.SourceFile)
	}
	if len(h.Tags) > 0 {
		parts = append(parts, "["+strings.Join(h.Tags, ", ")+"]")
	}
	return strings.Join(parts, " • ")
}

// Record prints one record in full, without its embedding.
func (w *Writer) Record(rec *store.Record) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.title.Render(rec.Title))
	w.field("ID", rec.ID)
	w.field("Type", rec.DocumentType)
	w.field("Source", rec.SourceFile)
	if !rec.Timestamp.IsZero() {
		w.field("Timestamp", rec.Timestamp.Format("2006-01-02 15:04:05"))
	}
	if len(rec.Tags) > 0 {
		w.field("Tags", strings.Join(rec.Tags, ", "))
	}
	if len(rec.Metadata) > 0 {
		keys := make([]string, 0, len(rec.Metadata))
		for k := range rec.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.field(k, fmt.Sprint(rec.Metadata[k]))
		}
	}
	w.Code(rec.Content)
}

// Records prints a one-line listing of records.
func (w *Writer) Records(recs []*store.Record) {
	if len(recs) == 0 {
		w.Status("", w.dim.Render("No records."))
		return
	}
	for _, rec := range recs {
		_, _ = fmt.Fprintf(w.out, "%s  %s  %s\n", w.dim.Render(rec.ID), rec.Title, w.dim.Render(rec.SourceFile))
	}
}

func (w *Writer) field(name, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.dim.Render(name+":"), value)
}

// Progress prints a progress bar with message.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	// Carriage return for in-place updates.
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(width, filled))

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
