package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/ai"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// maxCustomLabels bounds the custom label table; least-recently-used
// definitions are evicted once the bound is exceeded.
const maxCustomLabels = 500

// StatsRecord is the persisted statistics snapshot.
type StatsRecord struct {
	MessagesProcessed int64     `json:"messages_processed"`
	DraftsGenerated   int64     `json:"drafts_generated"`
	HoursSaved        float64   `json:"hours_saved"`
	LastUpdated       time.Time `json:"last_updated"`
}

// OutboxMessage is one undelivered event row.
type OutboxMessage struct {
	ID      int64
	Subject string
	Payload []byte
	MsgID   string
}

// Store is the service's persisted state: processed message ids,
// statistics, last-sync timestamp, custom label definitions and the
// event outbox.
type Store struct {
	DB *sql.DB
}

// Open opens or creates the state database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// LoadProcessedIDs returns all processed message ids in insertion order.
func (s *Store) LoadProcessedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT message_id FROM processed_messages ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddProcessedID records a message id as processed. Adding the same id
// twice is a no-op.
func (s *Store) AddProcessedID(ctx context.Context, messageID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_messages (message_id, added_at) VALUES (?, ?)
	`, messageID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert processed id: %w", err)
	}
	return nil
}

// TrimProcessed deletes the oldest entries until at most capacity remain.
func (s *Store) TrimProcessed(ctx context.Context, capacity int) error {
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM processed_messages
		WHERE id NOT IN (
			SELECT id FROM processed_messages ORDER BY id DESC LIMIT ?
		)
	`, capacity)
	if err != nil {
		return fmt.Errorf("failed to trim processed ids: %w", err)
	}
	return nil
}

// LoadStats returns the current persisted statistics snapshot.
func (s *Store) LoadStats(ctx context.Context) (StatsRecord, error) {
	var rec StatsRecord
	var lastUpdated int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT messages_processed, drafts_generated, hours_saved, last_updated
		FROM statistics WHERE id = 1
	`).Scan(&rec.MessagesProcessed, &rec.DraftsGenerated, &rec.HoursSaved, &lastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return StatsRecord{}, nil
		}
		return StatsRecord{}, fmt.Errorf("failed to load stats: %w", err)
	}
	if lastUpdated > 0 {
		rec.LastUpdated = time.Unix(lastUpdated, 0)
	}
	return rec, nil
}

// SaveStats overwrites the persisted statistics snapshot.
func (s *Store) SaveStats(ctx context.Context, rec StatsRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO statistics (id, messages_processed, drafts_generated, hours_saved, last_updated)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			messages_processed = excluded.messages_processed,
			drafts_generated = excluded.drafts_generated,
			hours_saved = excluded.hours_saved,
			last_updated = excluded.last_updated
	`, rec.MessagesProcessed, rec.DraftsGenerated, rec.HoursSaved, rec.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LastSyncAt returns the timestamp of the last completed sync cycle,
// or the zero time if none has completed.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	var ts int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT last_sync_at FROM sync_state WHERE id = 1
	`).Scan(&ts)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to load last sync: %w", err)
	}
	if ts == 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts, 0), nil
}

// SetLastSyncAt records the end timestamp of a completed cycle.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_sync_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_sync_at = excluded.last_sync_at
	`, t.Unix())
	if err != nil {
		return fmt.Errorf("failed to save last sync: %w", err)
	}
	return nil
}

// ListCustomLabels returns all custom label definitions.
func (s *Store) ListCustomLabels(ctx context.Context) ([]ai.CustomLabel, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, prompt, enabled FROM custom_labels ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom labels: %w", err)
	}
	defer rows.Close()

	var labels []ai.CustomLabel
	for rows.Next() {
		var l ai.CustomLabel
		var enabled int
		if err := rows.Scan(&l.ID, &l.Name, &l.Prompt, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan custom label: %w", err)
		}
		l.Enabled = enabled != 0
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// UpsertCustomLabel creates or updates a custom label definition and
// evicts the least recently used definitions beyond the bound.
func (s *Store) UpsertCustomLabel(ctx context.Context, l ai.CustomLabel) error {
	now := time.Now().Unix()
	enabled := 0
	if l.Enabled {
		enabled = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO custom_labels (id, name, prompt, enabled, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			prompt = excluded.prompt,
			enabled = excluded.enabled,
			last_used_at = excluded.last_used_at
	`, l.ID, l.Name, l.Prompt, enabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert custom label: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		DELETE FROM custom_labels
		WHERE id NOT IN (
			SELECT id FROM custom_labels ORDER BY last_used_at DESC LIMIT ?
		)
	`, maxCustomLabels)
	if err != nil {
		return fmt.Errorf("failed to evict custom labels: %w", err)
	}
	return nil
}

// DeleteCustomLabel removes a custom label definition.
func (s *Store) DeleteCustomLabel(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM custom_labels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete custom label: %w", err)
	}
	return nil
}

// TouchCustomLabel bumps a label's recency so active labels survive
// eviction.
func (s *Store) TouchCustomLabel(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE custom_labels SET last_used_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch custom label: %w", err)
	}
	return nil
}

// AppendOutbox enqueues an event for delivery. Duplicate msg ids are
// ignored.
func (s *Store) AppendOutbox(ctx context.Context, subject, eventType string, payload []byte, msgID string) error {
	now := time.Now().Unix()
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO outbox (ts, subject, event_type, payload, msg_id, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, now, subject, eventType, payload, msgID, now)
	if err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	return nil
}

// DequeueOutbox fetches undelivered messages that are due.
func (s *Store) DequeueOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	now := time.Now().Unix()
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, subject, payload, msg_id
		FROM outbox
		WHERE published_at IS NULL
		  AND next_attempt_at <= ?
		ORDER BY id
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.Subject, &msg.Payload, &msg.MsgID); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished marks an outbox message as delivered.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE outbox SET published_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark published: %w", err)
	}
	return nil
}

// MarkOutboxRetry bumps the retry count and defers the next attempt.
func (s *Store) MarkOutboxRetry(ctx context.Context, id int64, backoff time.Duration) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE outbox
		SET retries = retries + 1,
		    next_attempt_at = ?
		WHERE id = ?
	`, time.Now().Add(backoff).Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark retry: %w", err)
	}
	return nil
}
