package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

func (s *sqliteClient) GetUser(ctx context.Context, userID int64) (*db.UserMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var user db.UserMeta
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get user")
	}
	return &user, nil
}

func (s *sqliteClient) UpsertUser(ctx context.Context, user *db.UserMeta) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO users (id, username, display_name, is_bot, first_seen_at, joined_at,
			total_messages, total_reactions, streak_days, reputation, last_message_at)
		VALUES (:id, :username, :display_name, :is_bot, :first_seen_at, :joined_at,
			:total_messages, :total_reactions, :streak_days, :reputation, :last_message_at)
		ON CONFLICT(id) DO UPDATE SET
		username = excluded.username,
		display_name = excluded.display_name,
		joined_at = COALESCE(users.joined_at, excluded.joined_at),
		first_seen_at = COALESCE(users.first_seen_at, excluded.first_seen_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, user)
	return errors.Wrap(err, "upsert user")
}

func (s *sqliteClient) TouchUserActivity(ctx context.Context, userID int64, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		UPDATE users
		SET total_messages = total_messages + 1,
			last_message_at = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query, at, userID)
	return errors.Wrap(err, "touch user activity")
}
