package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Migration struct {
	ID          string
	Description string
	Up          func(context.Context, pgx.Tx) error
}

var migrations = []Migration{
	{
		ID:          "001_initial_schema",
		Description: "Create session and transcript tables",
		Up: func(ctx context.Context, tx pgx.Tx) error {
			sqlFile, err := sqlFS.ReadFile("db_init.sql")
			if err != nil {
				return fmt.Errorf(
					"failed to read embedded db_init.sql: %w",
					err,
				)
			}
			_, err = tx.Exec(ctx, string(sqlFile))
			return err
		},
	},
	{
		ID:          "002_transcript_indexes",
		Description: "Index transcripts by session and time",
		Up: func(ctx context.Context, tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				CREATE INDEX IF NOT EXISTS transcripts_session_idx
					ON transcripts (session_id);
				CREATE INDEX IF NOT EXISTS transcripts_created_at_idx
					ON transcripts (created_at DESC);
			`)
			return err
		},
	},
}

// Migrate applies every migration not yet recorded in migration_history,
// each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *log.Logger) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migration_history (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration_history table: %w", err)
	}

	for _, migration := range migrations {
		var applied bool
		err := pool.QueryRow(
			ctx,
			"SELECT true FROM migration_history WHERE id = $1",
			migration.ID,
		).Scan(&applied)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		if applied {
			logger.Debug("migration already applied", "id", migration.ID)
			continue
		}

		logger.Info("applying migration", "id", migration.ID, "description", migration.Description)

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if err := migration.Up(ctx, tx); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", migration.ID, err)
			}
			_, err := tx.Exec(
				ctx,
				"INSERT INTO migration_history (id) VALUES ($1)",
				migration.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to record migration %s: %w", migration.ID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
