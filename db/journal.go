package db

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"node.town/shabad/session"
)

// Journal records final transcripts. It implements session.Journal.
type Journal struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewJournal(pool *pgxpool.Pool, logger *log.Logger) *Journal {
	return &Journal{pool: pool, logger: logger}
}

func (j *Journal) Record(ctx context.Context, t session.Transcript) error {
	return pgx.BeginFunc(ctx, j.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO transcription_sessions (id, connection_id)
			VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, t.SessionID, t.ConnectionID)
		if err != nil {
			return fmt.Errorf("failed to upsert transcription session: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO transcripts (session_id, text, stability, created_at)
			VALUES ($1, $2, $3, $4)
		`, t.SessionID, t.Text, t.Stability, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert transcript: %w", err)
		}

		j.logger.Debug("recorded transcript", "session", t.SessionID, "chars", len(t.Text))
		return nil
	})
}

// Recent returns the latest transcripts, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]session.Transcript, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT s.connection_id, t.session_id, t.text, t.stability, t.created_at
		FROM transcripts t
		JOIN transcription_sessions s ON s.id = t.session_id
		ORDER BY t.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}

	transcripts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Transcript, error) {
		var t session.Transcript
		err := row.Scan(&t.ConnectionID, &t.SessionID, &t.Text, &t.Stability, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read transcripts: %w", err)
	}

	return transcripts, nil
}
