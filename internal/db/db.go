package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS threads (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL DEFAULT 'direct',
            participant_signature TEXT NOT NULL,
            last_message_preview TEXT,
            last_message_sender_id BIGINT,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_threads_direct_signature
            ON threads (participant_signature) WHERE kind = 'direct';`,
		`CREATE TABLE IF NOT EXISTS thread_participants (
            thread_id BIGINT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            last_read_at TIMESTAMPTZ,
            unread_count INT NOT NULL DEFAULT 0,
            is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
            is_muted BOOLEAN NOT NULL DEFAULT FALSE,
            is_archived BOOLEAN NOT NULL DEFAULT FALSE,
            PRIMARY KEY (thread_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_thread_participants_user
            ON thread_participants (user_id);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            thread_id BIGINT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            recipient_ids BIGINT[] NOT NULL DEFAULT '{}',
            content TEXT NOT NULL,
            attachments JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL DEFAULT 'sent',
            is_starred BOOLEAN NOT NULL DEFAULT FALSE,
            is_archived BOOLEAN NOT NULL DEFAULT FALSE,
            is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
            flag_reason TEXT,
            edited_at TIMESTAMPTZ,
            edit_history JSONB NOT NULL DEFAULT '[]',
            deleted_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread_created
            ON messages (thread_id, created_at, id);`,
		`CREATE TABLE IF NOT EXISTS operations (
            id BIGSERIAL PRIMARY KEY,
            token TEXT NOT NULL UNIQUE,
            actor_id BIGINT NOT NULL,
            thread_id BIGINT NOT NULL,
            kind TEXT NOT NULL,
            snapshots JSONB NOT NULL DEFAULT '[]',
            consumed BOOLEAN NOT NULL DEFAULT FALSE,
            expires_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT NOT NULL,
            action_url TEXT NOT NULL DEFAULT '',
            metadata JSONB NOT NULL DEFAULT '{}',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_unread
            ON notifications (user_id) WHERE is_read = FALSE;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
