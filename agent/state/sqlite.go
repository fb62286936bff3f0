package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/sqlitex"
)

const sqliteComponent = "conversations"

var sqliteMigrations = []sqlitex.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	patient_id TEXT,
	phase TEXT NOT NULL,
	version INTEGER NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_patient ON conversations(patient_id);
`},
}

// SQLiteStore persists conversations as JSON documents in SQLite.
type SQLiteStore struct {
	db *sqlitex.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore migrates the conversations table on db.
func NewSQLiteStore(db *sqlitex.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("sqlite db is nil")
	}
	if err := db.Migrate(sqliteComponent, sqliteMigrations); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (*Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrInvalidConversation
	}

	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM conversations WHERE id = ?", conversationID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return decodeConversation([]byte(payload))
}

func (s *SQLiteStore) Save(ctx context.Context, conv *Conversation) error {
	if err := prepareSave(conv); err != nil {
		return err
	}
	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, patient_id, phase, version, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_id = excluded.patient_id,
			phase = excluded.phase,
			version = excluded.version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		conv.ID, conv.PatientID, string(conv.Phase), conv.Version, string(payload),
		sqlitex.FormatTime(conv.CreatedAt), sqlitex.FormatTime(conv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
