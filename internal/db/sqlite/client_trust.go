package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

func (s *sqliteClient) GetTrust(ctx context.Context, userID int64) (*db.TrustRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var record db.TrustRecord
	err := s.db.GetContext(ctx, &record, `SELECT * FROM trust_scores WHERE user_id = ?`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get trust")
	}
	return &record, nil
}

func (s *sqliteClient) SaveTrust(ctx context.Context, record *db.TrustRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO trust_scores (
			user_id, overall_score, account_age_score, chat_age_score,
			message_count_score, message_quality_score, consistency_score,
			warning_penalty, reputation_score, trust_tier, last_calculated
		) VALUES (
			:user_id, :overall_score, :account_age_score, :chat_age_score,
			:message_count_score, :message_quality_score, :consistency_score,
			:warning_penalty, :reputation_score, :trust_tier, :last_calculated
		)
		ON CONFLICT(user_id) DO UPDATE SET
		overall_score = excluded.overall_score,
		account_age_score = excluded.account_age_score,
		chat_age_score = excluded.chat_age_score,
		message_count_score = excluded.message_count_score,
		message_quality_score = excluded.message_quality_score,
		consistency_score = excluded.consistency_score,
		warning_penalty = excluded.warning_penalty,
		reputation_score = excluded.reputation_score,
		trust_tier = excluded.trust_tier,
		last_calculated = excluded.last_calculated
	`
	_, err := s.db.NamedExecContext(ctx, query, record)
	return errors.Wrap(err, "save trust")
}
