package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

func (s *sqliteClient) AddWarning(ctx context.Context, warning *db.Warning) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO warnings (user_id, chat_id, reason, severity, issued_by, issued_at, expires_at, case_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		warning.UserID,
		warning.ChatID,
		warning.Reason,
		warning.Severity,
		warning.IssuedBy,
		warning.IssuedAt,
		warning.ExpiresAt,
		warning.CaseRef,
	)
	if err != nil {
		return 0, errors.Wrap(err, "add warning")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "add warning")
	}
	warning.ID = id
	return id, nil
}

func (s *sqliteClient) GetActiveWarnings(ctx context.Context, userID int64) ([]*db.Warning, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var warnings []*db.Warning
	err := s.db.SelectContext(ctx, &warnings, `
		SELECT * FROM warnings
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY issued_at DESC
	`, userID, time.Now())
	return warnings, errors.Wrap(err, "get active warnings")
}

func (s *sqliteClient) GetActiveWarningCount(ctx context.Context, userID int64) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM warnings
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
	`, userID, time.Now())
	return count, errors.Wrap(err, "get active warning count")
}

func (s *sqliteClient) CreateCase(ctx context.Context, c *db.Case) (*db.Case, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO cases (ref, case_type, user_id, chat_id, message_id, reason, evidence, action_taken, created_by, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		c.Ref,
		c.CaseType,
		c.UserID,
		c.ChatID,
		c.MessageID,
		c.Reason,
		c.Evidence,
		c.ActionTaken,
		c.CreatedBy,
		c.CreatedAt,
		c.ResolvedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create case")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create case")
	}
	c.ID = id
	return c, nil
}
