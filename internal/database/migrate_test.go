package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const insertBreachSQL = `INSERT INTO breaches (id, summary, source_url, source_title, dedup_key, records_affected, created_at)
VALUES (?, 'summary', 'https://example.com', 'title', ?, ?, '2026-01-01T00:00:00Z')`

func TestMigrateCreatesBreachSchema(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)

	for _, table := range []string{"processed_articles", "breaches", "breach_updates"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
	for _, index := range []string{"idx_breaches_discovery", "idx_breach_updates_breach", "idx_processed_outcome"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
		assert.NoError(t, err, "index %s", index)
	}
}

func TestSchemaDedupKeyUnique(t *testing.T) {
	db := openTestDB(t)

	_, err := db.conn.Exec(insertBreachSQL, "b1", "acme|2026-01", nil)
	require.NoError(t, err)
	_, err = db.conn.Exec(insertBreachSQL, "b2", "acme|2026-01", nil)
	assert.Error(t, err, "second breach with the same dedup key")

	// Records without a key never collide.
	_, err = db.conn.Exec(insertBreachSQL, "b3", nil, nil)
	require.NoError(t, err)
	_, err = db.conn.Exec(insertBreachSQL, "b4", nil, nil)
	assert.NoError(t, err)
}

func TestSchemaRecordsAffectedCheck(t *testing.T) {
	db := openTestDB(t)

	_, err := db.conn.Exec(insertBreachSQL, "neg", nil, -1)
	assert.Error(t, err)
	_, err = db.conn.Exec(insertBreachSQL, "zero", nil, 0)
	assert.NoError(t, err)
}

func TestSchemaUpdateNeedsBreach(t *testing.T) {
	db := openTestDB(t)

	_, err := db.conn.Exec(`INSERT INTO breach_updates (breach_id, update_type, source_url, source_title, created_at)
VALUES ('missing', 'new_info', 'https://example.com', 'title', '2026-01-01T00:00:00Z')`)
	assert.Error(t, err)
}

func TestMigrateReopenKeepsLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.MarkProcessed("article-1", "bleepingcomputer", OutcomeCreated))
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	done, err := db2.IsProcessed("article-1")
	require.NoError(t, err)
	assert.True(t, done)

	version, err := getSchemaVersion(db2.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

// A crash between commit and the version stamp leaves user_version behind;
// the DDL must re-run cleanly over the existing tables.
func TestMigrateRerunsAfterLostVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rerun.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	_, err = db1.conn.Exec(insertBreachSQL, "b1", "acme|2026-01", 10)
	require.NoError(t, err)
	_, err = db1.conn.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	var n int
	require.NoError(t, db2.conn.QueryRow(`SELECT COUNT(*) FROM breaches`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "future.db")
	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	raw.Close()

	_, err = Open(dbPath)
	assert.ErrorContains(t, err, "newer than this binary supports")
}
