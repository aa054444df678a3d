package membership

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS group_members (
	group_id   TEXT NOT NULL,
	public_key TEXT NOT NULL,
	addr       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (group_id, public_key)
);`

// SQLitePersister stores snapshots in a SQLite table, one row per member.
type SQLitePersister struct {
	db     *sql.DB
	dbPath string
}

// NewSQLitePersister opens, or creates, the database file at dbPath.
func NewSQLitePersister(dbPath string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// a single writer goroutine uses the pool
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLitePersister{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Load implements Persister. A group without rows was never written.
func (p *SQLitePersister) Load(id peers.GroupID) (Snapshot, error) {
	rows, err := p.db.Query(
		`SELECT public_key, addr FROM group_members WHERE group_id = ?`,
		id.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(Snapshot)
	found := false
	for rows.Next() {
		var key, addr string
		if err := rows.Scan(&key, &addr); err != nil {
			return nil, err
		}
		found = true
		// the empty key marks a group written with no members
		if key == "" {
			continue
		}
		a, err := peers.ParseAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", key, err)
		}
		res[key] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !found {
		return nil, common.NewStoreErr("SQLitePersister", common.KeyNotFound, groupKey(id))
	}
	return res, nil
}

// Write implements Persister. The rows of the group are replaced in a single
// transaction.
func (p *SQLitePersister) Write(id peers.GroupID, snap Snapshot) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_members WHERE group_id = ?`, id.Hex()); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	stmt, err := tx.Prepare(
		`INSERT INTO group_members (group_id, public_key, addr, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if len(snap) == 0 {
		if _, err := stmt.Exec(id.Hex(), "", "", now); err != nil {
			return err
		}
	}
	for key, addr := range snap {
		if _, err := stmt.Exec(id.Hex(), key, addr.Hex(), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Close implements Persister.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// DBPath returns the location of the database file.
func (p *SQLitePersister) DBPath() string {
	return p.dbPath
}
