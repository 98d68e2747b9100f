package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

func (s *sqliteClient) AppendMessageHistory(ctx context.Context, event *db.MessageEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT OR REPLACE INTO message_history (
			message_id, user_id, chat_id, content_hash, mention_count, has_media, created_at
		) VALUES (:message_id, :user_id, :chat_id, :content_hash, :mention_count, :has_media, :created_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, event)
	return errors.Wrap(err, "append message history")
}

func (s *sqliteClient) QueryMessageHistory(ctx context.Context, userID int64, since time.Time) ([]*db.MessageEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var events []*db.MessageEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM message_history
		WHERE user_id = ? AND created_at > ?
		ORDER BY created_at ASC
	`, userID, since)
	return events, errors.Wrap(err, "query message history")
}

func (s *sqliteClient) CleanupMessageHistory(ctx context.Context, olderThan time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM message_history WHERE created_at < ?`, olderThan)
	return errors.Wrap(err, "cleanup message history")
}
