package vecindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"cinegraph/backend/internal/catalog"
	"cinegraph/backend/pkg/errors"
)

// Metadata is the row-aligned record table of the semantic index: row i of
// the index describes Records[i].
type Metadata struct {
	records []catalog.Record
	rows    map[string]int
	build   string
}

// NewMetadata creates an empty table
func NewMetadata() *Metadata {
	return &Metadata{rows: make(map[string]int)}
}

// Append adds records at the next rows. A repeated id is rejected before
// anything is written.
func (m *Metadata) Append(records []catalog.Record) error {
	batch := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := m.rows[r.ID]; dup {
			return errors.NewInvalidInput("record", "duplicate id "+r.ID)
		}
		if _, dup := batch[r.ID]; dup {
			return errors.NewInvalidInput("record", "duplicate id "+r.ID)
		}
		batch[r.ID] = struct{}{}
	}
	for _, r := range records {
		m.rows[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// BuildID identifies the build that produced the table
func (m *Metadata) BuildID() string {
	return m.build
}

// Len returns the number of rows
func (m *Metadata) Len() int {
	return len(m.records)
}

// Record returns the record at row
func (m *Metadata) Record(row int) (catalog.Record, bool) {
	if row < 0 || row >= len(m.records) {
		return catalog.Record{}, false
	}
	return m.records[row], true
}

// Row resolves a catalogue id to its row
func (m *Metadata) Row(id string) (int, bool) {
	row, ok := m.rows[id]
	return row, ok
}

// IDs returns the catalogue ids in row order
func (m *Metadata) IDs() []string {
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.ID
	}
	return out
}

const metadataSchema = `
CREATE TABLE IF NOT EXISTS records (
	row           INTEGER PRIMARY KEY,
	tconst        TEXT NOT NULL UNIQUE,
	primary_title TEXT NOT NULL DEFAULT '',
	start_year    INTEGER NOT NULL DEFAULT 0,
	genres        TEXT NOT NULL DEFAULT '',
	synopsis      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS build (
	id TEXT NOT NULL
);
`

// Save writes the table to a fresh SQLite file at path
func (m *Metadata) Save(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale metadata file: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening metadata db: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, metadataSchema); err != nil {
		return fmt.Errorf("creating metadata schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metadata tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO build (id) VALUES (?)`, m.build); err != nil {
		return fmt.Errorf("writing metadata build id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (row, tconst, primary_title, start_year, genres, synopsis) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing metadata insert: %w", err)
	}
	defer stmt.Close()

	for row, r := range m.records {
		if _, err := stmt.ExecContext(ctx, row, r.ID, r.Title, r.Year, strings.Join(r.Genres, ","), r.Description); err != nil {
			return fmt.Errorf("inserting metadata row %d: %w", row, err)
		}
	}
	return tx.Commit()
}

// LoadMetadata reads a table written by Save. Rows must be dense from 0.
func LoadMetadata(ctx context.Context, path string) (*Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifact("index metadata", path)
		}
		return nil, fmt.Errorf("checking metadata file: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}
	defer db.Close()

	var build string
	if err := db.QueryRowContext(ctx, `SELECT id FROM build LIMIT 1`).Scan(&build); err != nil {
		return nil, errors.NewArtifactMismatch("index metadata has no build id: " + err.Error())
	}

	rows, err := db.QueryContext(ctx,
		`SELECT row, tconst, primary_title, start_year, genres, synopsis FROM records ORDER BY row`)
	if err != nil {
		return nil, errors.NewArtifactMismatch("index metadata unreadable: " + err.Error())
	}
	defer rows.Close()

	m := NewMetadata()
	for rows.Next() {
		var (
			row    int
			r      catalog.Record
			genres string
		)
		if err := rows.Scan(&row, &r.ID, &r.Title, &r.Year, &genres, &r.Description); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		if row != m.Len() {
			return nil, errors.NewArtifactMismatch(fmt.Sprintf("index metadata row %d found where %d was expected", row, m.Len()))
		}
		r.Genres = catalog.ParseGenres(genres)
		if err := m.Append([]catalog.Record{r}); err != nil {
			return nil, errors.NewArtifactMismatch(err.Error())
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata rows: %w", err)
	}
	m.build = build
	return m, nil
}
