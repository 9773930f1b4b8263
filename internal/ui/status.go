package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the memory system for the status command.
type StatusInfo struct {
	StorageDir string `json:"storage_dir"`
	Version    string `json:"system_version,omitempty"`

	Documents    int `json:"documents"`
	IndexSize    int `json:"index_size"`
	Slots        int `json:"slots"`
	Tombstones   int `json:"tombstones"`
	FullTextDocs int `json:"fulltext_docs"`
	Dimensions   int `json:"dimensions"`

	VectorBackend   string `json:"vector_backend"`
	FullTextBackend string `json:"fulltext_backend,omitempty"`

	// DiskSize is the total size of the storage directory in bytes.
	DiskSize int64 `json:"disk_size"`

	Initialized time.Time `json:"initialized,omitzero"`
	LastStart   time.Time `json:"last_start,omitzero"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"

	// Health is "healthy" or "degraded" after a consistency check.
	Health string `json:"health,omitempty"`
	Issues int    `json:"issues"`

	TotalQueries   int64    `json:"total_queries"`
	ZeroResultRate float64  `json:"zero_result_rate"`
	TopQueryTerms  []string `json:"top_query_terms,omitempty"`
}

// StatusRenderer displays memory status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render writes status info for a terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Memory Status: "+info.StorageDir))

	_, _ = fmt.Fprintf(r.out, "  Documents:    %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Index size:   %d\n", info.IndexSize)
	if info.Tombstones > 0 {
		_, _ = fmt.Fprintf(r.out, "  Tombstones:   %d of %d slots\n", info.Tombstones, info.Slots)
	}
	if !info.Initialized.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Initialized:  %s\n", r.formatTime(info.Initialized))
	}
	if !info.LastStart.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last start:   %s\n", r.formatTime(info.LastStart))
	}
	if info.Version != "" {
		_, _ = fmt.Fprintf(r.out, "  Version:      %s\n", info.Version)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Indexes:")
	_, _ = fmt.Fprintf(r.out, "    Vector:     %s (%d dims)\n", info.VectorBackend, info.Dimensions)
	if info.FullTextBackend != "" {
		_, _ = fmt.Fprintf(r.out, "    Full-text:  %s (%d docs)\n", info.FullTextBackend, info.FullTextDocs)
	} else {
		_, _ = fmt.Fprintf(r.out, "    Full-text:  %s\n", r.styles.Dim.Render("disabled"))
	}
	_, _ = fmt.Fprintf(r.out, "    Disk:       %s\n", FormatBytes(info.DiskSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Type:   %s\n", info.EmbedderType)
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:  %s\n", info.EmbedderModel)
	}

	if info.Health != "" {
		_, _ = fmt.Fprintln(r.out)
		health := r.renderStatus(info.Health)
		if info.Issues > 0 {
			health += fmt.Sprintf(" (%d issues)", info.Issues)
		}
		_, _ = fmt.Fprintf(r.out, "  Health: %s\n", health)
	}

	if info.TotalQueries > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Queries:")
		_, _ = fmt.Fprintf(r.out, "    Total:        %d\n", info.TotalQueries)
		_, _ = fmt.Fprintf(r.out, "    Zero results: %.1f%%\n", info.ZeroResultRate)
		if len(info.TopQueryTerms) > 0 {
			_, _ = fmt.Fprintf(r.out, "    Top terms:    %v\n", info.TopQueryTerms)
		}
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "healthy":
		return r.styles.Success.Render(status)
	case "offline", "degraded":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func (r *StatusRenderer) formatTime(t time.Time) string {
	return formatTime(t, r.now())
}

// formatTime renders t relative to now.
func formatTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
