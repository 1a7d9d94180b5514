package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS entities (
		entity TEXT NOT NULL,
		id TEXT NOT NULL,
		attributes TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (entity, id)
	);
`

// SQLite stores entities in a single table keyed by entity type and ID.
type SQLite struct {
	db     *sql.DB
	owns   bool
	logger *zap.Logger
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open '%s': %w", dbcrypt.ErrDatabaseUnavailable, path, err)
	}
	s, err := NewSQLite(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owns = true
	return s, nil
}

// NewSQLite uses an open database. Close does not close it.
func NewSQLite(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("%w: create schema: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Save(ctx context.Context, e *dbcrypt.Entity) error {
	data, err := encodeBag(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (entity, id, attributes) VALUES (?, ?, ?)
		ON CONFLICT (entity, id) DO UPDATE SET attributes = excluded.attributes, updated_at = CURRENT_TIMESTAMP
	`, e.Type().Name(), e.ID().String(), string(data)); err != nil {
		return fmt.Errorf("%w: save %s %s: %w", dbcrypt.ErrDatabaseUnavailable, e.Type().Name(), e.ID(), err)
	}
	s.logger.Debug("entity saved", zap.String("entity", e.Type().Name()), zap.Stringer("id", e.ID()))
	return nil
}

func (s *SQLite) Load(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) (*dbcrypt.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT attributes FROM entities WHERE entity = ? AND id = ?
	`, typ.Name(), id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(typ, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s %s: %w", dbcrypt.ErrDatabaseUnavailable, typ.Name(), id, err)
	}
	return decodeBag(typ, id, []byte(data))
}

func (s *SQLite) Delete(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE entity = ? AND id = ?`, typ.Name(), id.String())
	if err != nil {
		return fmt.Errorf("%w: delete %s %s: %w", dbcrypt.ErrDatabaseUnavailable, typ.Name(), id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(typ, id)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, typ *dbcrypt.EntityType) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entities WHERE entity = ? ORDER BY id`, typ.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", dbcrypt.ErrDatabaseUnavailable, typ.Name(), err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			s.logger.Warn("skipping row with invalid id", zap.String("entity", typ.Name()), zap.String("id", raw))
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	return ids, nil
}

// RawColumn returns the stored JSON of one entity, as found on disk.
func (s *SQLite) RawColumn(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) (string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT attributes FROM entities WHERE entity = ? AND id = ?
	`, typ.Name(), id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(typ, id)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	return data, nil
}

func (s *SQLite) Close() error {
	if s.owns {
		return s.db.Close()
	}
	return nil
}
