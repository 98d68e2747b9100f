package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

func (s *sqliteClient) GetFingerprintByPHash(ctx context.Context, phash string) (*db.Fingerprint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var fp db.Fingerprint
	err := s.db.GetContext(ctx, &fp, `SELECT * FROM image_fingerprints WHERE phash = ?`, phash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get fingerprint")
	}
	return &fp, nil
}

func (s *sqliteClient) GetFingerprintByID(ctx context.Context, fingerprintID int64) (*db.Fingerprint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var fp db.Fingerprint
	err := s.db.GetContext(ctx, &fp, `SELECT * FROM image_fingerprints WHERE id = ?`, fingerprintID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get fingerprint by id")
	}
	return &fp, nil
}

func (s *sqliteClient) ListFingerprints(ctx context.Context, offset, limit int) ([]*db.Fingerprint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var fps []*db.Fingerprint
	err := s.db.SelectContext(ctx, &fps, `
		SELECT * FROM image_fingerprints
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	return fps, errors.Wrap(err, "list fingerprints")
}

// InsertFingerprint resolves concurrent inserts of the same image through
// the unique phash key: the loser of the race gets the winner's row id and
// a times_posted bump instead of an error.
func (s *sqliteClient) InsertFingerprint(ctx context.Context, fp *db.Fingerprint) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO image_fingerprints (
			dhash, phash, ahash, is_spam, spam_category,
			first_seen_user_id, first_seen_chat_id, first_seen_message_id, first_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(phash) DO UPDATE SET times_posted = times_posted + 1
		RETURNING id
	`
	var id int64
	err := s.db.GetContext(ctx, &id, query,
		fp.DHash,
		fp.PHash,
		fp.AHash,
		fp.IsSpam,
		fp.SpamCategory,
		fp.FirstSeenUserID,
		fp.FirstSeenChatID,
		fp.FirstSeenMessageID,
		fp.FirstSeenAt,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert fingerprint")
	}
	fp.ID = id
	return id, nil
}

func (s *sqliteClient) IncrementTimesPosted(ctx context.Context, fingerprintID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE image_fingerprints SET times_posted = times_posted + 1 WHERE id = ?
	`, fingerprintID)
	return errors.Wrap(err, "increment times posted")
}

func (s *sqliteClient) RecordFingerprintPoster(ctx context.Context, fingerprintID, userID int64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fingerprint_posters (fingerprint_id, user_id) VALUES (?, ?)
	`, fingerprintID, userID)
	if err != nil {
		return false, errors.Wrap(err, "record fingerprint poster")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "record fingerprint poster")
	}
	if affected == 0 {
		return false, nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE image_fingerprints SET unique_posters = unique_posters + 1 WHERE id = ?
	`, fingerprintID)
	return true, errors.Wrap(err, "bump unique posters")
}

func (s *sqliteClient) PromoteFingerprintSpam(ctx context.Context, fingerprintID int64, category string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE image_fingerprints SET is_spam = TRUE, spam_category = ? WHERE id = ?
	`, category, fingerprintID)
	return errors.Wrap(err, "promote fingerprint spam")
}

func (s *sqliteClient) InsertReport(ctx context.Context, report *db.ImageReport) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO image_reports (id, fingerprint_id, reporter_id, reason, reported_at)
		VALUES (:id, :fingerprint_id, :reporter_id, :reason, :reported_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, report); err != nil {
		return errors.Wrap(err, "insert report")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE image_fingerprints SET report_count = report_count + 1 WHERE id = ?
	`, report.FingerprintID)
	return errors.Wrap(err, "bump report count")
}

func (s *sqliteClient) CountRecentReportsBy(ctx context.Context, fingerprintID, reporterID int64, since time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM image_reports
		WHERE fingerprint_id = ? AND reporter_id = ? AND reported_at > ?
	`, fingerprintID, reporterID, since)
	return count, errors.Wrap(err, "count recent reports")
}
