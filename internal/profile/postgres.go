package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notifyChannel = "profile_changes"

// PostgresStore implements Store using PostgreSQL. Watchers are woken with
// LISTEN/NOTIFY on the profile_changes channel.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed profile store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the profiles table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			doc_id UUID PRIMARY KEY,
			seq BIGSERIAL,
			uid VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			phone VARCHAR(32) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL,
			join_date VARCHAR(32) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_uid ON profiles(uid)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create profiles schema: %w", err)
		}
	}
	return nil
}

// Insert stores p as a new document and notifies watchers of its uid.
func (s *PostgresStore) Insert(ctx context.Context, p Profile) (string, error) {
	docID := uuid.New()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO profiles (doc_id, uid, name, email, phone, role, joined_at, join_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, docID, p.UID, p.Name, p.Email, p.Phone, p.Role, p.Time.UTC(), p.Date)
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, p.UID); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return docID.String(), nil
}

// Lookup returns the most recently inserted profile for uid.
func (s *PostgresStore) Lookup(ctx context.Context, uid string) (Profile, error) {
	row := s.db.QueryRow(ctx, `SELECT doc_id, uid, name, email, phone, role, joined_at, join_date
        FROM profiles WHERE uid = $1 ORDER BY seq DESC LIMIT 1`, uid)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// List returns every profile in insertion order.
func (s *PostgresStore) List(ctx context.Context) ([]Profile, error) {
	return s.query(ctx, `SELECT doc_id, uid, name, email, phone, role, joined_at, join_date
        FROM profiles ORDER BY seq`)
}

// Delete removes a single document.
func (s *PostgresStore) Delete(ctx context.Context, docID string) error {
	id, err := uuid.Parse(docID)
	if err != nil {
		return err
	}
	var uid string
	err = s.db.QueryRow(ctx, `DELETE FROM profiles WHERE doc_id = $1 RETURNING uid`, id).Scan(&uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, uid)
	return err
}

// Watch emits the current profiles for uid and re-emits whenever a change to
// that uid is notified. The listening connection is held until the
// subscription ends.
func (s *PostgresStore) Watch(ctx context.Context, uid string) (*Subscription, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	return newSubscription(ctx, func(ctx context.Context, emit emitFunc) error {
		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = conn.Exec(cleanupCtx, "UNLISTEN "+notifyChannel)
			conn.Release()
		}()

		for {
			snapshot, err := s.query(ctx, `SELECT doc_id, uid, name, email, phone, role, joined_at, join_date
                FROM profiles WHERE uid = $1 ORDER BY seq`, uid)
			if err != nil {
				return err
			}
			if !emit(snapshot) {
				return nil
			}
			for {
				n, err := conn.Conn().WaitForNotification(ctx)
				if err != nil {
					return err
				}
				if n.Payload == uid {
					break
				}
			}
		}
	}), nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Profile, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		id       uuid.UUID
		joinedAt time.Time
		p        Profile
	)
	if err := row.Scan(&id, &p.UID, &p.Name, &p.Email, &p.Phone, &p.Role, &joinedAt, &p.Date); err != nil {
		return Profile{}, err
	}
	p.DocID = id.String()
	p.Time = joinedAt.UTC()
	return p, nil
}
