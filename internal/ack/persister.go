// Package ack persists delivery acknowledgements onto broadcast rows.
package ack

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// LevelTerminal marks a broadcast row as final (not registered or done);
// such rows are never updated again.
const LevelTerminal = 9

// Store updates the acknowledgement level of a broadcast row.
type Store interface {
	UpdateAck(ctx context.Context, number string, level int) (int64, error)
}

// Statements per driver. Only rows created in the last 24 hours, already
// sent and not terminal are touched.
var statements = map[string]string{
	"mysql": "UPDATE `wa_broadcasts` SET `ack` = ?, `updated_at` = NOW() " +
		"WHERE `number` = ? AND `ack` < 9 AND `is_sent` > 0 AND `created_at` > SUBTIME(NOW(), '24:0:0')",
	"postgres": "UPDATE wa_broadcasts SET ack = $1, updated_at = NOW() " +
		"WHERE number = $2 AND ack < 9 AND is_sent > 0 AND created_at > NOW() - INTERVAL '24 hours'",
	"sqlite3": "UPDATE wa_broadcasts SET ack = ?, updated_at = datetime('now') " +
		"WHERE number = ? AND ack < 9 AND is_sent > 0 AND created_at > datetime('now', '-24 hours')",
}

// sql.Open driver names; the postgres dialect goes through pgx's stdlib driver.
var driverNames = map[string]string{
	"mysql":    "mysql",
	"postgres": "pgx",
	"sqlite3":  "sqlite3",
}

// Persister executes one conditional update per acknowledgement on a
// connection opened for that update alone.
type Persister struct {
	driver string
	dsn    string
	query  string
}

// NewPersister creates a persister for the given driver and DSN.
func NewPersister(driver, dsn string) (*Persister, error) {
	query, ok := statements[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return &Persister{driver: driverNames[driver], dsn: dsn, query: query}, nil
}

// UpdateAck sets the acknowledgement level for number and returns the
// number of rows changed. Rows outside the predicate are left untouched
// and do not produce an error.
func (p *Persister) UpdateAck(ctx context.Context, number string, level int) (int64, error) {
	db, err := sql.Open(p.driver, p.dsn)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	res, err := db.ExecContext(ctx, p.query, level, number)
	if err != nil {
		return 0, fmt.Errorf("failed to update ack for %s: %w", number, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}
