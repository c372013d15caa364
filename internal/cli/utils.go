// Package cli provides CLI utilities for lookalike.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/hyperjump/lookalike/internal/models"
)

// Text output colors. fatih/color disables them when stdout is not a terminal.
var (
	headerColor = color.New(color.FgCyan, color.Bold)
	scoreColor  = color.New(color.FgGreen)
	warnColor   = color.New(color.FgRed, color.Bold)
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%s\n\n", headerColor.Sprintf("Found %d results in %dms", len(response.Results), response.QueryTime))
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %s\n", i+1, scoreColor.Sprintf("%.4f", result.Score))
		fmt.Fprintf(w, "ID: %s\n", result.ID)
		if result.DisplayURL != "" {
			fmt.Fprintf(w, "URL: %s\n", Truncate(result.DisplayURL, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "items:              %d   # count of stored items\n", status.Items)
	fmt.Fprintf(w, "store_type:         %s\n", status.StoreType)
	fmt.Fprintf(w, "push_down:          %t   # ranking runs inside the store\n", status.PushDown)
	if status.Dimensions > 0 {
		fmt.Fprintf(w, "embedding_dims:     %d\n", status.Dimensions)
	}
	if status.DiskUsage > 0 {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database on disk\n", status.DiskUsage)
	}
	if status.Breaker != "" {
		state := status.Breaker
		if state != "closed" {
			state = warnColor.Sprint(state)
		}
		fmt.Fprintf(w, "breaker:            %s\n", state)
	}
	return nil
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
