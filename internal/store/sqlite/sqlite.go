// Package sqlite provides a SQLite-backed implementation of the store.Backend
// port. Open the database with a DSN that sets _txlock=immediate so every
// consume transaction takes the write lock up front; the CAS guard on
// view_count catches anything that slips past a differently configured pool.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/haukened/vanish/internal/domain"
	"github.com/haukened/vanish/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend implements store.Backend using SQLite (via database/sql). It is safe
// for concurrent use; database/sql manages connection pooling.
type Backend struct{ db *sql.DB }

// New constructs a Backend, initializing the required schema if absent.
func New(db *sql.DB) (*Backend, error) {
	b := &Backend{db: db}
	if err := b.init(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS secrets (
id TEXT PRIMARY KEY,
ciphertext BLOB NOT NULL,
nonce BLOB NOT NULL,
expires_at INTEGER NOT NULL,
max_views INTEGER NOT NULL CHECK (max_views >= 1),
view_count INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0 AND view_count < max_views),
created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS secrets_expires_at ON secrets (expires_at);`
	_, err := b.db.Exec(schema)
	return err
}

// Insert stores a new secret row. A duplicate id is reported as a storage
// error wrapping domain.ErrIDCollision.
func (b *Backend) Insert(ctx context.Context, rec domain.SecretRecord) error {
	const q = `INSERT INTO secrets (id, ciphertext, nonce, expires_at, max_views, view_count, created_at) VALUES (?,?,?,?,?,?,?)`
	_, err := b.db.ExecContext(ctx, q, rec.ID.String(), rec.Ciphertext, rec.Nonce, rec.ExpiresAt.UnixMilli(), rec.MaxViews, rec.ViewCount, rec.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Storage("sqlite.insert", domain.ErrIDCollision)
		}
		return domain.Storage("sqlite.insert", err)
	}
	return nil
}

// Consume runs fn inside one transaction and applies its decision guarded by
// the view_count that was read.
func (b *Backend) Consume(ctx context.Context, id domain.SecretID, fn store.ConsumeFunc) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Storage("sqlite.consume", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT ciphertext, nonce, expires_at, max_views, view_count, created_at FROM secrets WHERE id = ?`
	rec := domain.SecretRecord{ID: id}
	var expiresMS, createdMS int64
	row := tx.QueryRowContext(ctx, sel, id.String())
	if err = row.Scan(&rec.Ciphertext, &rec.Nonce, &expiresMS, &rec.MaxViews, &rec.ViewCount, &createdMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.Storage("sqlite.consume", err)
	}
	rec.ExpiresAt = time.UnixMilli(expiresMS).UTC()
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()

	m, err := fn(rec)
	if err != nil {
		return err
	}
	var n int
	switch m {
	case store.MutationDelete:
		n, err = b.remove(ctx, tx, `id = ? AND view_count = ?`, id.String(), rec.ViewCount)
	case store.MutationIncrement:
		n, err = affected(tx.ExecContext(ctx, `UPDATE secrets SET view_count = view_count + 1 WHERE id = ? AND view_count = ?`, id.String(), rec.ViewCount))
	default:
		err = errors.New("unknown mutation " + m.String())
	}
	if err != nil {
		return domain.Storage("sqlite.consume", err)
	}
	if n != 1 {
		err = domain.Storage("sqlite.consume", store.ErrConflict)
		return err
	}
	if err = tx.Commit(); err != nil {
		return domain.Storage("sqlite.consume", err)
	}
	return nil
}

// DeleteExpired removes up to limit rows with expires_at before the given
// instant in a single statement.
func (b *Backend) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	var (
		n   int
		err error
	)
	if limit > 0 {
		n, err = b.remove(ctx, b.db, `id IN (SELECT id FROM secrets WHERE expires_at < ? LIMIT ?)`, before.UnixMilli(), limit)
	} else {
		n, err = b.remove(ctx, b.db, `expires_at < ?`, before.UnixMilli())
	}
	return n, domain.Storage("sqlite.delete_expired", err)
}

// Ping checks database connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return domain.Storage("sqlite.ping", b.db.PingContext(ctx))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// remove is the only DELETE issued against the secrets table; lazy deletion
// during consume and the expiry sweep both go through it.
func (b *Backend) remove(ctx context.Context, ex execer, where string, args ...any) (int, error) {
	return affected(ex.ExecContext(ctx, `DELETE FROM secrets WHERE `+where, args...))
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}
