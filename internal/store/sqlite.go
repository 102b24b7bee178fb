package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/verte-zerg/dopabank/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

const (
	rewardsTable       = "rewards"
	rewardsBackupTable = "rewards_backup"
)

// SQLiteBackend stores user records as JSON documents keyed by user id and
// the reward catalog as rows.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the SQLite database and applies migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	b := &SQLiteBackend{db: db, path: path}
	if err := b.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return b, nil
}

// Location implements Backend.
func (b *SQLiteBackend) Location() string { return b.path }

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// The rewards table is created on first save only: its absence is how a
// per-user deployment knows that no legacy catalog is waiting.
func (b *SQLiteBackend) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			doc TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// LoadUsers implements Backend.
func (b *SQLiteBackend) LoadUsers(ctx context.Context) (map[string]*model.UserRecord, bool, error) {
	var initialized int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta WHERE key = 'users_saved'`).Scan(&initialized); err != nil {
		return nil, false, fmt.Errorf("load users: %w", err)
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, doc FROM users`)
	if err != nil {
		return nil, false, fmt.Errorf("load users: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	users := map[string]*model.UserRecord{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, false, fmt.Errorf("load users: %w", err)
		}
		var rec model.UserRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, false, fmt.Errorf("decode user %s: %w", id, err)
		}
		users[id] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load users: %w", err)
	}
	return users, initialized > 0 || len(users) > 0, nil
}

// SaveUsers replaces every stored user document inside one transaction.
func (b *SQLiteBackend) SaveUsers(ctx context.Context, users map[string]*model.UserRecord) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (id, doc) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare user insert: %w", err)
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for id, rec := range users {
		var doc []byte
		doc, err = json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", id, err)
		}
		if _, err = stmt.ExecContext(ctx, id, string(doc)); err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES ('users_saved', '1')`); err != nil {
		return fmt.Errorf("mark users saved: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadRewards implements Backend.
func (b *SQLiteBackend) LoadRewards(ctx context.Context) (map[string]model.Reward, bool, error) {
	exists, err := b.tableExists(ctx, rewardsTable)
	if err != nil {
		return nil, false, fmt.Errorf("load rewards: %w", err)
	}
	if !exists {
		return map[string]model.Reward{}, false, nil
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, name, cost FROM rewards`)
	if err != nil {
		return nil, false, fmt.Errorf("load rewards: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	rewards := map[string]model.Reward{}
	for rows.Next() {
		var r model.Reward
		if err := rows.Scan(&r.ID, &r.Name, &r.Cost); err != nil {
			return nil, false, fmt.Errorf("load rewards: %w", err)
		}
		rewards[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load rewards: %w", err)
	}
	return rewards, true, nil
}

// SaveRewards replaces the reward catalog inside one transaction.
func (b *SQLiteBackend) SaveRewards(ctx context.Context, rewards map[string]model.Reward) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rewards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			cost INTEGER NOT NULL
		);`,
		`DELETE FROM rewards`,
	}
	for _, s := range stmts {
		if _, err = tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("reset rewards: %w", err)
		}
	}
	for id, r := range rewards {
		if _, err = tx.ExecContext(ctx, `INSERT INTO rewards (id, name, cost) VALUES (?, ?, ?)`, id, r.Name, r.Cost); err != nil {
			return fmt.Errorf("insert reward %s: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ArchiveRewards renames the rewards table to rewards_backup.
func (b *SQLiteBackend) ArchiveRewards(ctx context.Context) error {
	stmts := []string{
		`DROP TABLE IF EXISTS ` + rewardsBackupTable,
		`ALTER TABLE ` + rewardsTable + ` RENAME TO ` + rewardsBackupTable,
	}
	for _, s := range stmts {
		if _, err := b.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("archive rewards: %w", err)
		}
	}
	return nil
}
