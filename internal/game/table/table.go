// Package table holds the per-level upgrade probability table.
//
// The table is data: a versioned list of rows loaded at startup. Curve shape
// is a tuning concern of the content files, not of this package.
package table

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Outcome is the result class of one upgrade draw.
type Outcome string

const (
	Success     Outcome = "success"
	Failure     Outcome = "failure"
	Destruction Outcome = "destruction"
)

// ErrInvalidTable is returned when rows violate a table invariant.
var ErrInvalidTable = errors.New("invalid upgrade table")

// Row is the configuration for attempting an upgrade from Level to Level+1.
type Row struct {
	Level      int   `yaml:"level" json:"level"`
	SuccessPct int   `yaml:"success" json:"successPct"`
	DestroyPct int   `yaml:"destroy" json:"destroyPct"`
	FailPct    int   `yaml:"fail" json:"failPct"`
	Cost       int64 `yaml:"cost" json:"cost"`
}

// Resolve maps a percent draw in [0, 100) onto this row's partition:
// success below SuccessPct, destruction below SuccessPct+DestroyPct,
// failure otherwise.
//
// Precondition: 0 <= draw < 100.
func (r Row) Resolve(draw float64) Outcome {
	switch {
	case draw < float64(r.SuccessPct):
		return Success
	case draw < float64(r.SuccessPct+r.DestroyPct):
		return Destruction
	default:
		return Failure
	}
}

// Table is an immutable, validated upgrade table.
//
// Invariant: rows[i].Level == i and each row's percentages sum to 100.
type Table struct {
	version int
	rows    []Row
}

// New validates rows and builds a Table.
//
// Precondition: rows must be ordered by level starting at 0.
// Postcondition: Returns a Table whose MaxLevel is len(rows), or an error
// wrapping ErrInvalidTable describing the first violation.
func New(version int, rows []Row) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidTable)
	}
	for i, r := range rows {
		if r.Level != i {
			return nil, fmt.Errorf("%w: row %d has level %d", ErrInvalidTable, i, r.Level)
		}
		if r.SuccessPct < 0 || r.DestroyPct < 0 || r.FailPct < 0 {
			return nil, fmt.Errorf("%w: level %d has a negative percentage", ErrInvalidTable, r.Level)
		}
		if sum := r.SuccessPct + r.DestroyPct + r.FailPct; sum != 100 {
			return nil, fmt.Errorf("%w: level %d percentages sum to %d", ErrInvalidTable, r.Level, sum)
		}
		if r.Cost <= 0 {
			return nil, fmt.Errorf("%w: level %d cost must be positive", ErrInvalidTable, r.Level)
		}
	}
	cp := make([]Row, len(rows))
	copy(cp, rows)
	return &Table{version: version, rows: cp}, nil
}

// Version returns the content version the table was loaded from.
func (t *Table) Version() int { return t.version }

// MaxLevel is the highest reachable level; no row exists for it.
func (t *Table) MaxLevel() int { return len(t.rows) }

// Info returns the row for an upgrade attempt from level, or false at or
// above MaxLevel and for negative levels.
func (t *Table) Info(level int) (Row, bool) {
	if level < 0 || level >= len(t.rows) {
		return Row{}, false
	}
	return t.rows[level], true
}

// Rows returns a copy of every row in level order.
func (t *Table) Rows() []Row {
	cp := make([]Row, len(t.rows))
	copy(cp, t.rows)
	return cp
}

// DangerLevel returns the first level whose destruction chance is non-zero,
// or MaxLevel if none is.
func (t *Table) DangerLevel() int {
	for _, r := range t.rows {
		if r.DestroyPct > 0 {
			return r.Level
		}
	}
	return len(t.rows)
}

type tableFile struct {
	Version int   `yaml:"version"`
	Rows    []Row `yaml:"rows"`
}

// Load reads a table YAML file.
//
// Precondition: path must name a readable YAML file with version and rows keys.
// Postcondition: Returns a validated Table or an error.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes table YAML. Unknown keys are rejected.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing table: %w", err)
	}
	return New(f.Version, f.Rows)
}
