package outcome

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes outcome records to <schema>.verification_outcomes.
//
// The pool is owned by the caller; Close is a no-op.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "livecheck").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("outcome: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("outcome: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "livecheck",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("outcome: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Migrate creates the schema and table if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	table := pgIdent(s.schema, "verification_outcomes")
	schema := pgx.Identifier{s.schema}.Sanitize()

	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			run_id          text PRIMARY KEY,
			session_id      text NOT NULL,
			artifact_handle text NOT NULL DEFAULT '',
			artifact_digest text NOT NULL DEFAULT '',
			state           text NOT NULL CHECK (state IN ('succeeded', 'failed')),
			reason          text NOT NULL DEFAULT '',
			started_at      timestamptz NOT NULL,
			finished_at     timestamptz NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS verification_outcomes_session_idx ON ` + table + ` (session_id, finished_at DESC)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("outcome: migrate: %w", err)
		}
	}
	return nil
}

// Append inserts rec. Re-appending the same run id is a no-op.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return errors.New("outcome: nil store")
	}
	if err := rec.validate(); err != nil {
		return err
	}

	table := pgIdent(s.schema, "verification_outcomes")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+table+`
		   (run_id, session_id, artifact_handle, artifact_digest, state, reason, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (run_id) DO NOTHING`,
		rec.RunID, rec.SessionID, rec.ArtifactHandle, rec.ArtifactDigest,
		rec.State, rec.Reason, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("outcome: append: %w", err)
	}
	return nil
}

// Recent returns up to limit records for sessionID, newest first.
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("outcome: nil store")
	}
	limit = clampLimit(limit)

	table := pgIdent(s.schema, "verification_outcomes")
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, session_id, artifact_handle, artifact_digest, state, reason, started_at, finished_at
		   FROM `+table+`
		  WHERE session_id = $1
		  ORDER BY finished_at DESC
		  LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.RunID,
			&r.SessionID,
			&r.ArtifactHandle,
			&r.ArtifactDigest,
			&r.State,
			&r.Reason,
			&r.StartedAt,
			&r.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
