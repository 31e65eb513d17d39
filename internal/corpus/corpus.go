// Package corpus loads posting and candidate skill lists from YAML, JSON or
// XLSX files and applies them to storage and the recommendation service.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hyperjump/skillrank/internal/models"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Record is one posting or candidate in a corpus file. Eligible defaults to true.
type Record struct {
	ID       int64    `yaml:"id" json:"id"`
	Eligible *bool    `yaml:"eligible,omitempty" json:"eligible,omitempty"`
	Skills   []string `yaml:"skills" json:"skills"`
}

// IsEligible reports the record's eligibility, defaulting to true.
func (r Record) IsEligible() bool {
	return r.Eligible == nil || *r.Eligible
}

// Corpus is the content of a corpus file.
type Corpus struct {
	Postings   []Record `yaml:"postings" json:"postings"`
	Candidates []Record `yaml:"candidates" json:"candidates"`
}

// Records returns the records of kind.
func (c *Corpus) Records(kind models.Kind) []Record {
	if kind == models.KindPosting {
		return c.Postings
	}
	return c.Candidates
}

// Validate rejects duplicate ids within a kind.
func (c *Corpus) Validate() error {
	for _, kind := range models.Kinds {
		seen := make(map[int64]bool)
		for _, r := range c.Records(kind) {
			if seen[r.ID] {
				return fmt.Errorf("duplicate %s id %d", kind, r.ID)
			}
			seen[r.ID] = true
		}
	}
	return nil
}

// Formats lists the supported file extensions.
var Formats = []string{".yaml", ".yml", ".json", ".xlsx"}

// Load reads the corpus at path. The format is chosen by file extension.
func Load(path string) (*Corpus, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		c   *Corpus
		err error
	)
	switch ext {
	case ".xlsx":
		c, err = loadXLSX(path)
	case ".yaml", ".yml", ".json":
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		c, err = Parse(data, ext)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q (supported: %s)", ext, strings.Join(Formats, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML or JSON corpus data. ext is ".json" for JSON; anything else is YAML.
func Parse(data []byte, ext string) (*Corpus, error) {
	var c Corpus
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse corpus: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadXLSX reads sheets named "postings" and "candidates" (case-insensitive).
// The first row is a header naming the columns id, skills and optionally
// eligible; skills are comma or semicolon separated.
func loadXLSX(path string) (*Corpus, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var c Corpus
	found := false
	for _, sheet := range f.GetSheetList() {
		kind, err := models.ParseKind(strings.ToLower(strings.TrimSpace(sheet)))
		if err != nil {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		records, err := parseRows(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		found = true
		if kind == models.KindPosting {
			c.Postings = append(c.Postings, records...)
		} else {
			c.Candidates = append(c.Candidates, records...)
		}
	}
	if !found {
		return nil, fmt.Errorf("no postings or candidates sheet found")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func parseRows(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	col := map[string]int{"id": -1, "skills": -1, "eligible": -1}
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, ok := col[name]; ok {
			col[name] = i
		}
	}
	if col["id"] < 0 || col["skills"] < 0 {
		return nil, fmt.Errorf("header must name id and skills columns")
	}

	var out []Record
	for n, row := range rows[1:] {
		line := n + 2
		idText := cell(row, col["id"])
		if idText == "" {
			continue
		}
		id, err := strconv.ParseInt(idText, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid id %q", line, idText)
		}
		r := Record{ID: id, Skills: splitSkills(cell(row, col["skills"]))}
		if col["eligible"] >= 0 {
			if v := cell(row, col["eligible"]); v != "" {
				b, err := parseBool(v)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", line, err)
				}
				r.Eligible = &b
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func splitSkills(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "open", "active":
		return true, nil
	case "no", "n", "closed", "inactive":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid eligible value %q", s)
	}
	return b, nil
}
