package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// Create inserts a new session row.
func (db *DB) Create(ctx context.Context, session *model.Session) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("sqlite: encoding session %s: %w", session.ID, err)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		session.ID,
		string(state),
		session.CreatedAt.UnixNano(),
		session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking insert: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("session", session.ID)
	}
	return nil
}

// Get loads a session by id.
func (db *DB) Get(ctx context.Context, id string) (*model.Session, error) {
	return getSession(ctx, db.conn, id)
}

// Update reads, mutates and writes a session inside one transaction.
// With the pool capped at one connection the transaction also serialises
// concurrent updates in this process.
func (db *DB) Update(ctx context.Context, id string, fn repository.MutateFunc) (*model.Session, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	session, err := getSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}
	session.ID = id
	session.UpdatedAt = time.Now()

	state, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding session %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		string(state),
		session.UpdatedAt.UnixNano(),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing session update: %w", err)
	}
	return session, nil
}

// Delete removes a session.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("session", id)
	}
	return nil
}

// Sweep deletes every session not updated since idleBefore.
func (db *DB) Sweep(ctx context.Context, idleBefore time.Time) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, idleBefore.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking sweep: %w", err)
	}
	return int(n), nil
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q queryRower, id string) (*model.Session, error) {
	var state string
	err := q.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(state), &session); err != nil {
		return nil, fmt.Errorf("sqlite: decoding session %s: %w", id, err)
	}
	return &session, nil
}
