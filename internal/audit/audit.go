// Package audit keeps a PostgreSQL ledger of tickets created through the
// gateway. Writes are best-effort: the ticket already exists when a row is
// written.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/postgres"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS intake_submissions (
	id            UUID PRIMARY KEY,
	request_id    TEXT        NOT NULL DEFAULT '',
	ticket_key    TEXT        NOT NULL,
	ticket_id     TEXT        NOT NULL DEFAULT '',
	client_ip     TEXT        NOT NULL DEFAULT '',
	format_type   TEXT        NOT NULL,
	company       TEXT        NOT NULL,
	message_types TEXT[]      NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL
);
DO $$
BEGIN
	IF EXISTS (SELECT 1 FROM information_schema.columns
	           WHERE table_name = 'intake_submissions' AND column_name = 'message_types' AND data_type = 'text') THEN
		ALTER TABLE intake_submissions ALTER COLUMN message_types DROP DEFAULT;
		ALTER TABLE intake_submissions ALTER COLUMN message_types TYPE TEXT[]
			USING CASE WHEN message_types = '' THEN '{}'::TEXT[] ELSE string_to_array(message_types, ',') END;
		ALTER TABLE intake_submissions ALTER COLUMN message_types SET DEFAULT '{}';
	END IF;
END $$;
CREATE INDEX IF NOT EXISTS idx_intake_submissions_created_at ON intake_submissions (created_at DESC);
`

// Record is one created ticket.
type Record struct {
	ID         string
	RequestID  string
	TicketKey  string
	TicketID   string
	ClientIP   string
	FormatType string
	Company    string
	Messages   []string
	CreatedAt  time.Time
}

// Store writes Records to PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "audit"),
	}
}

// Migrate creates the ledger table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating audit table: %w", err)
	}
	return nil
}

// Record inserts r, assigning an ID when empty.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO intake_submissions
			 (id, request_id, ticket_key, ticket_id, client_ip, format_type, company, message_types, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.RequestID, r.TicketKey, r.TicketID, r.ClientIP, r.FormatType, r.Company,
			messageArray(r.Messages), r.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting audit record for %s: %w", r.TicketKey, err)
		}
		return nil
	})
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, request_id, ticket_key, ticket_id, client_ip, format_type, company, message_types, created_at
		 FROM intake_submissions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RequestID, &r.TicketKey, &r.TicketID, &r.ClientIP,
			&r.FormatType, &r.Company, pq.Array(&r.Messages), &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// messageArray encodes msgs as a TEXT[] value; nil becomes an empty array.
func messageArray(msgs []string) pq.StringArray {
	if msgs == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(msgs)
}
