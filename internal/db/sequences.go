package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SequenceSpec names an AUTOINCREMENT table whose identities must never be
// handed out twice. Retired points at a column recording identities that
// no longer exist in Table, such as hard-merged parties.
type SequenceSpec struct {
	Table         string
	IDColumn      string
	RetiredTable  string
	RetiredColumn string
}

// SequenceDrift captures a sqlite_sequence value below the highest identity
// already used.
type SequenceDrift struct {
	Table    string
	MaxID    int64
	SeqValue int64
}

type sqlExecutor interface {
	sqlx.Execer
	sqlx.Queryer
}

// DefaultSequenceSpecs returns the built-in sequences.
func DefaultSequenceSpecs() []SequenceSpec {
	return []SequenceSpec{
		{Table: "party", IDColumn: "id", RetiredTable: "party_merges", RetiredColumn: "duplicate_id"},
		{Table: "address", IDColumn: "id"},
		{Table: "invoice", IDColumn: "id"},
		{Table: "category", IDColumn: "id"},
		{Table: "event_log", IDColumn: "id"},
	}
}

// SequenceDrifts returns any sequences whose sqlite_sequence value is below
// the max identity in use or retired.
func SequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts := []SequenceDrift{}

	for _, spec := range specs {
		maxID, err := maxUsedID(exec, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to compute max ID for %s: %w", spec.Table, err)
		}

		seqValue, err := currentSequence(exec, spec.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to read sqlite_sequence for %s: %w", spec.Table, err)
		}

		if seqValue < maxID {
			drifts = append(drifts, SequenceDrift{
				Table:    spec.Table,
				MaxID:    maxID,
				SeqValue: seqValue,
			})
		}
	}

	return drifts, nil
}

// FixSequenceDrifts raises sqlite_sequence to the max used identities.
// Returns the list of sequences that were updated.
func FixSequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts, err := SequenceDrifts(exec, specs)
	if err != nil {
		return nil, err
	}

	for _, drift := range drifts {
		if err := setSequence(exec, drift.Table, drift.MaxID); err != nil {
			return nil, fmt.Errorf("failed to update sqlite_sequence for %s: %w", drift.Table, err)
		}
	}

	return drifts, nil
}

func maxUsedID(exec sqlExecutor, spec SequenceSpec) (int64, error) {
	var maxID int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(%q), 0) FROM %q", spec.IDColumn, spec.Table)
	if err := sqlx.Get(exec, &maxID, query); err != nil {
		return 0, err
	}
	if spec.RetiredTable == "" {
		return maxID, nil
	}

	var retired int64
	query = fmt.Sprintf("SELECT COALESCE(MAX(%q), 0) FROM %q", spec.RetiredColumn, spec.RetiredTable)
	if err := sqlx.Get(exec, &retired, query); err != nil {
		return 0, err
	}
	return max(maxID, retired), nil
}

func currentSequence(exec sqlExecutor, table string) (int64, error) {
	var seq sql.NullInt64
	err := sqlx.Get(exec, &seq, "SELECT seq FROM sqlite_sequence WHERE name = ?", table)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func setSequence(exec sqlExecutor, table string, value int64) error {
	res, err := exec.Exec("UPDATE sqlite_sequence SET seq = ? WHERE name = ?", value, table)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	_, err = exec.Exec("INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", table, value)
	return err
}
