package ack

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (string, *sql.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "broadcasts.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE wa_broadcasts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL,
		message TEXT,
		ack INTEGER NOT NULL DEFAULT 0,
		is_sent INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME
	)`)
	require.NoError(t, err)
	return dsn, db
}

func insertRow(t *testing.T, db *sql.DB, number string, ack, isSent int, age string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO wa_broadcasts (number, ack, is_sent, created_at) VALUES (?, ?, ?, datetime('now', ?))`,
		number, ack, isSent, age,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func ackOf(t *testing.T, db *sql.DB, id int64) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow(`SELECT ack FROM wa_broadcasts WHERE id = ?`, id).Scan(&v))
	return v
}

func TestNewPersisterUnknownDriver(t *testing.T) {
	_, err := NewPersister("oracle", "")
	require.Error(t, err)
}

func TestUpdateAckOverwritesNonMonotonically(t *testing.T) {
	ctx := context.Background()
	dsn, db := newTestDB(t)
	id := insertRow(t, db, "5551234567", 1, 1, "-1 hours")

	p, err := NewPersister("sqlite3", dsn)
	require.NoError(t, err)

	n, err := p.UpdateAck(ctx, "5551234567", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 3, ackOf(t, db, id))

	// A lower level still overwrites; there is no monotonic guard.
	n, err = p.UpdateAck(ctx, "5551234567", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, ackOf(t, db, id))
}

func TestUpdateAckSkipsRowsOutsidePredicate(t *testing.T) {
	ctx := context.Background()
	dsn, db := newTestDB(t)

	terminal := insertRow(t, db, "5551234567", LevelTerminal, 1, "-1 hours")
	unsent := insertRow(t, db, "5551234567", 0, 0, "-1 hours")
	stale := insertRow(t, db, "5551234567", 1, 1, "-25 hours")
	other := insertRow(t, db, "5559999999", 1, 1, "-1 hours")

	p, err := NewPersister("sqlite3", dsn)
	require.NoError(t, err)

	n, err := p.UpdateAck(ctx, "5551234567", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, LevelTerminal, ackOf(t, db, terminal))
	assert.Equal(t, 0, ackOf(t, db, unsent))
	assert.Equal(t, 1, ackOf(t, db, stale))
	assert.Equal(t, 1, ackOf(t, db, other))
}

func TestUpdateAckSetsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	dsn, db := newTestDB(t)
	id := insertRow(t, db, "5551234567", 0, 1, "-2 hours")

	p, err := NewPersister("sqlite3", dsn)
	require.NoError(t, err)
	_, err = p.UpdateAck(ctx, "5551234567", 1)
	require.NoError(t, err)

	var updated sql.NullString
	require.NoError(t, db.QueryRow(`SELECT updated_at FROM wa_broadcasts WHERE id = ?`, id).Scan(&updated))
	assert.True(t, updated.Valid)
}

func TestUpdateAckMissingTable(t *testing.T) {
	p, err := NewPersister("sqlite3", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)

	_, err = p.UpdateAck(context.Background(), "5551234567", 3)
	require.Error(t, err)
}
