package pairing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/dbx"
)

const serverKeyName = "server_key"

// SQLiteStore implements Repository on an SQLite database.
type SQLiteStore struct {
	db *dbx.SQLite
	mu sync.Mutex // serializes writes
}

var _ Repository = (*SQLiteStore)(nil)

// Open opens (or creates) the pairing database at path and migrates it.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := dbx.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *dbx.SQLite) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Writer.ExecContext(ctx,
		`INSERT INTO pairings (id, verifier_hash, created_at) VALUES (?, ?, ?)`,
		rec.ID, rec.VerifierHash[:], rec.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert pairing: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	// Ids are always UUIDs; anything else cannot be stored.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := s.db.Reader.QueryRowContext(ctx,
		`SELECT id, verifier_hash, created_at FROM pairings WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pairing: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Reader.QueryContext(ctx,
		`SELECT id, verifier_hash, created_at FROM pairings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairings: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pairing: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pairings: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Writer.ExecContext(ctx, `DELETE FROM pairings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pairing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Writer.ExecContext(ctx, `DELETE FROM pairings`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pairings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ServerKey(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key []byte
	err := dbx.WithTx(ctx, s.db.Writer, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, serverKeyName).Scan(&key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		key = cryptox.NewServerKey()
		_, err = tx.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)`, serverKeyName, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load server key: %w", err)
	}
	return key, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec      Record
		verifier []byte
		created  int64
	)
	if err := row.Scan(&rec.ID, &verifier, &created); err != nil {
		return nil, err
	}
	if len(verifier) != len(rec.VerifierHash) {
		return nil, fmt.Errorf("corrupt verifier for pairing %s", rec.ID)
	}
	copy(rec.VerifierHash[:], verifier)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return &rec, nil
}
