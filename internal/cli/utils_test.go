package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/skillrank/internal/models"
	"github.com/hyperjump/skillrank/internal/recommend"
)

func sampleResponse() *models.RecommendResponse {
	return &models.RecommendResponse{
		QueryID:    7,
		QueryKind:  models.KindCandidate,
		TargetKind: models.KindPosting,
		Clustered:  true,
		QueryTime:  3,
		Results: []models.Recommendation{
			{EntityID: 42, Score: 0.91, Rank: 1},
			{EntityID: 5, Score: 0.5, Rank: 2},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOutputFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteRecommendations_JSON(t *testing.T) {
	response := sampleResponse()
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteRecommendations(json): %v", err)
	}
	var decoded models.RecommendResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.QueryID != 7 || decoded.TargetKind != models.KindPosting || !decoded.Clustered {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].EntityID != 42 || decoded.Results[1].Rank != 2 {
		t.Errorf("results order not kept: %+v", decoded.Results)
	}
}

func TestWriteRecommendations_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"2 posting recommendations for candidate 7", "3ms", "nearest cluster", "RANK", "42", "0.9100"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "42") > strings.Index(out, "0.5000") {
		t.Errorf("results out of rank order:\n%s", out)
	}
}

func TestWriteRecommendations_textTooSmall(t *testing.T) {
	response := sampleResponse()
	response.Clustered = false
	response.Results = nil
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "corpus too small") {
		t.Errorf("expected too-small note:\n%s", out)
	}
	if strings.Contains(out, "RANK") {
		t.Errorf("empty result should have no table:\n%s", out)
	}
}

func TestWriteRecommendations_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecommendations(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "1\t42\t0.9100" {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestWriteStatus(t *testing.T) {
	statuses := []recommend.KindStatus{
		{
			Kind: models.KindPosting, Loaded: true, Size: 12, K: 8, State: "built", Generation: 3,
			ClusterSizes: []int{2, 1, 3, 1, 1, 2, 1, 1}, BuiltAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Iterations: 4,
		},
		{Kind: models.KindCandidate, K: 4, State: "empty"},
	}

	var buf bytes.Buffer
	if err := WriteStatus(&buf, statuses, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"posting:", "size:        12", "index:       built", "2 1 3 1 1 2 1 1", "2026-01-02T03:04:05Z", "candidate:", "index:       empty"} {
		if !strings.Contains(out, sub) {
			t.Errorf("status output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteStatus(&buf, statuses, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []recommend.KindStatus
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Size != 12 || decoded[1].State != "empty" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestJoinInts(t *testing.T) {
	if got := JoinInts([]int{1, 22, 3}, ","); got != "1,22,3" {
		t.Errorf("JoinInts = %q", got)
	}
	if got := JoinInts(nil, ","); got != "" {
		t.Errorf("JoinInts(nil) = %q", got)
	}
}
