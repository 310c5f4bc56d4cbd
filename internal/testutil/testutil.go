package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/db"
)

// TempDB creates a temporary SQLite database with migrations applied
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	require.NoError(t, err, "failed to create test database")

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// SeedParty inserts an active party and returns its identity
func SeedParty(t *testing.T, database *db.DB, name string) int64 {
	t.Helper()
	res, err := database.Exec(`INSERT INTO party (name) VALUES (?)`, name)
	require.NoError(t, err)
	partyID, err := res.LastInsertId()
	require.NoError(t, err)
	return partyID
}

// SeedAddress inserts an address owned by partyID
func SeedAddress(t *testing.T, database *db.DB, partyID int64, city string) int64 {
	t.Helper()
	res, err := database.Exec(`INSERT INTO address (party_id, city) VALUES (?, ?)`, partyID, city)
	require.NoError(t, err)
	addressID, err := res.LastInsertId()
	require.NoError(t, err)
	return addressID
}

// SeedInvoice inserts a draft invoice issued to partyID
func SeedInvoice(t *testing.T, database *db.DB, partyID int64, amountCents int64) int64 {
	t.Helper()
	var next int64
	require.NoError(t, database.Get(&next, `SELECT coalesce(max(id), 0) + 1 FROM invoice`))
	res, err := database.Exec(`INSERT INTO invoice (number, party_id, amount_cents) VALUES (?, ?, ?)`,
		fmt.Sprintf("T-%05d", next), partyID, amountCents)
	require.NoError(t, err)
	invoiceID, err := res.LastInsertId()
	require.NoError(t, err)
	return invoiceID
}

// SeedCategory inserts a category and links it to each party given
func SeedCategory(t *testing.T, database *db.DB, name string, partyIDs ...int64) int64 {
	t.Helper()
	res, err := database.Exec(`INSERT INTO category (name) VALUES (?)`, name)
	require.NoError(t, err)
	categoryID, err := res.LastInsertId()
	require.NoError(t, err)
	for _, partyID := range partyIDs {
		_, err := database.Exec(`INSERT INTO party_category (party_id, category_id) VALUES (?, ?)`, partyID, categoryID)
		require.NoError(t, err)
	}
	return categoryID
}

// CountRows counts rows of table where column = value
func CountRows(t *testing.T, database *db.DB, table, column string, value interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, database.Get(&n, fmt.Sprintf(`SELECT count(*) FROM %q WHERE %q = ?`, table, column), value))
	return n
}
