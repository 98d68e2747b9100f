package db

import (
	"context"
	"time"
)

// Client is the persistence contract the moderation core depends on. All
// operations are transactional at the single-row level; the core never
// requires cross-table transactions.
type Client interface {
	Close() error

	GetUser(ctx context.Context, userID int64) (*UserMeta, error)
	UpsertUser(ctx context.Context, user *UserMeta) error
	TouchUserActivity(ctx context.Context, userID int64, at time.Time) error

	GetTrust(ctx context.Context, userID int64) (*TrustRecord, error)
	SaveTrust(ctx context.Context, record *TrustRecord) error

	AppendMessageHistory(ctx context.Context, event *MessageEvent) error
	QueryMessageHistory(ctx context.Context, userID int64, since time.Time) ([]*MessageEvent, error)
	CleanupMessageHistory(ctx context.Context, olderThan time.Time) error

	GetFingerprintByPHash(ctx context.Context, phash string) (*Fingerprint, error)
	GetFingerprintByID(ctx context.Context, fingerprintID int64) (*Fingerprint, error)
	ListFingerprints(ctx context.Context, offset, limit int) ([]*Fingerprint, error)
	InsertFingerprint(ctx context.Context, fp *Fingerprint) (int64, error)
	IncrementTimesPosted(ctx context.Context, fingerprintID int64) error
	RecordFingerprintPoster(ctx context.Context, fingerprintID, userID int64) (bool, error)
	PromoteFingerprintSpam(ctx context.Context, fingerprintID int64, category string) error

	InsertReport(ctx context.Context, report *ImageReport) error
	CountRecentReportsBy(ctx context.Context, fingerprintID, reporterID int64, since time.Time) (int, error)

	AddWarning(ctx context.Context, warning *Warning) (int64, error)
	GetActiveWarnings(ctx context.Context, userID int64) ([]*Warning, error)
	GetActiveWarningCount(ctx context.Context, userID int64) (int, error)

	CreateCase(ctx context.Context, c *Case) (*Case, error)
}
