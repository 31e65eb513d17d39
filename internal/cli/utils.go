// Package cli provides output helpers for the skillrank command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/recommend"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates s as an output format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteRecommendations writes a ranked result list to w in the given format.
// Results are written in rank order.
func WriteRecommendations(w io.Writer, response *models.RecommendResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%d\t%.4f\n", r.Rank, r.EntityID, r.Score)
		}
		return nil
	default:
		writeRecommendationsText(w, response)
		return nil
	}
}

func writeRecommendationsText(w io.Writer, response *models.RecommendResponse) {
	mode := "nearest cluster"
	if !response.Clustered {
		mode = "all eligible, corpus too small to cluster"
	}
	fmt.Fprintf(w, "\n%d %s recommendations for %s %d in %dms (%s)\n\n",
		len(response.Results), response.TargetKind, response.QueryKind, response.QueryID, response.QueryTime, mode)
	if len(response.Results) == 0 {
		return
	}
	fmt.Fprintf(w, "%-6s %-12s %s\n", "RANK", "ID", "SCORE")
	for _, r := range response.Results {
		fmt.Fprintf(w, "%-6d %-12d %.4f\n", r.Rank, r.EntityID, r.Score)
	}
	fmt.Fprintln(w)
}

// WriteStatus writes per-kind cache status to w.
func WriteStatus(w io.Writer, statuses []recommend.KindStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, statuses)
	}
	for _, st := range statuses {
		fmt.Fprintf(w, "%s:\n", st.Kind)
		fmt.Fprintf(w, "  loaded:      %t\n", st.Loaded)
		fmt.Fprintf(w, "  size:        %d\n", st.Size)
		fmt.Fprintf(w, "  clusters:    %d\n", st.K)
		fmt.Fprintf(w, "  index:       %s\n", st.State)
		fmt.Fprintf(w, "  generation:  %d\n", st.Generation)
		if len(st.ClusterSizes) > 0 {
			fmt.Fprintf(w, "  sizes:       %s\n", JoinInts(st.ClusterSizes, " "))
			fmt.Fprintf(w, "  built:       %s (%d iterations)\n", st.BuiltAt.Format(time.RFC3339), st.Iterations)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// JoinInts formats ints separated by sep.
func JoinInts(vals []int, sep string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, sep)
}
