// Package catalog holds the typed movie records behind the semantic index.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cinegraph/backend/pkg/errors"
)

// missing is the catalogue's null marker
const missing = `\N`

// Record is one catalogue item. Fields absent from the source are left at
// their zero value; Year is 0 when unknown.
type Record struct {
	ID          string   `json:"tconst"`
	Title       string   `json:"primary_title"`
	Year        int      `json:"start_year,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Description string   `json:"synopsis,omitempty"`
	// WikiTitle is the encyclopedia article used to fill a missing description
	WikiTitle   string   `json:"wikipedia_title,omitempty"`
}

// HasText reports whether the record carries a non-blank description
func (r Record) HasText() bool {
	return strings.TrimSpace(r.Description) != ""
}

// Snippet returns at most n runes of the description on a single line,
// with an ellipsis when cut
func (r Record) Snippet(n int) string {
	return Truncate(strings.ReplaceAll(r.Description, "\n", " "), n)
}

// Truncate cuts s to n runes and appends "..." when it was longer
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ParseGenres splits a comma separated genre list
func ParseGenres(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == missing {
		return nil
	}
	var out []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// LoadFile reads a catalogue TSV from disk
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifact("catalogue", path)
		}
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a tab separated catalogue with a header row. Required columns
// are tconst and primaryTitle; startYear, genres, synopsis and
// wikipediaTitle are optional.
func Load(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewInvalidInput("catalogue", "missing header row")
		}
		return nil, fmt.Errorf("failed to read catalogue header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{"tconst", "primaryTitle"} {
		if _, ok := cols[required]; !ok {
			return nil, errors.NewInvalidInput("catalogue", "missing column "+required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		v := strings.TrimSpace(row[i])
		if v == missing {
			return ""
		}
		return v
	}

	var records []Record
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalogue line %d: %w", line, err)
		}
		id := field(row, "tconst")
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rec := Record{
			ID:          id,
			Title:       field(row, "primaryTitle"),
			Genres:      ParseGenres(field(row, "genres")),
			Description: field(row, "synopsis"),
			WikiTitle:   field(row, "wikipediaTitle"),
		}
		if y := field(row, "startYear"); y != "" {
			if year, err := strconv.Atoi(y); err == nil {
				rec.Year = year
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
