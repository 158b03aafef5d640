package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"healthatlas/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the SQLite file at dbPath and creates the
// key-value table if needed. The caller must call Close().
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer is all a two-key table needs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	s.log.Debug("selection store ready")
	return nil
}

func (s *SQLite) Get(ctx context.Context) (models.Selection, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (?, ?)`, KeyCountryCode, KeyCountryName)
	if err != nil {
		return models.Selection{}, false, fmt.Errorf("query selection: %w", err)
	}
	defer rows.Close()

	var sel models.Selection
	found := 0
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return models.Selection{}, false, fmt.Errorf("scan selection: %w", err)
		}
		switch k {
		case KeyCountryCode:
			sel.CountryCode = v
		case KeyCountryName:
			sel.CountryName = v
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return models.Selection{}, false, fmt.Errorf("read selection: %w", err)
	}
	// Both values are written together; a half selection counts as none.
	return sel, found == 2, nil
}

// Put stores both values in a single transaction.
func (s *SQLite) Put(ctx context.Context, sel models.Selection) error {
	sel, err := Normalize(sel)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, kv := range [][2]string{{KeyCountryCode, sel.CountryCode}, {KeyCountryName, sel.CountryName}} {
		if _, err := stmt.ExecContext(ctx, kv[0], kv[1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec upsert for %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.log.Debug("selection persisted", zap.String("country", sel.CountryCode))
	return nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsInvalid reports whether err was caused by a rejected selection.
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalid) }
