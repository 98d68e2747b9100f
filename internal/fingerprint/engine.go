package fingerprint

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db"
	werrors "github.com/wardenbot/warden/internal/errors"
	"github.com/wardenbot/warden/internal/observability"
)

const spamCategoryReported = "community_reported"

type store interface {
	GetFingerprintByPHash(ctx context.Context, phash string) (*db.Fingerprint, error)
	GetFingerprintByID(ctx context.Context, fingerprintID int64) (*db.Fingerprint, error)
	ListFingerprints(ctx context.Context, offset, limit int) ([]*db.Fingerprint, error)
	InsertFingerprint(ctx context.Context, fp *db.Fingerprint) (int64, error)
	IncrementTimesPosted(ctx context.Context, fingerprintID int64) error
	RecordFingerprintPoster(ctx context.Context, fingerprintID, userID int64) (bool, error)
	PromoteFingerprintSpam(ctx context.Context, fingerprintID int64, category string) error
	InsertReport(ctx context.Context, report *db.ImageReport) error
	CountRecentReportsBy(ctx context.Context, fingerprintID, reporterID int64, since time.Time) (int, error)
}

type (
	// Poster identifies who posted the image and where.
	Poster struct {
		UserID    int64
		ChatID    int64
		MessageID int64
	}

	// Match is the result of one fingerprint check.
	Match struct {
		Fingerprint *db.Fingerprint
		New         bool
		Exact       bool
		Distance    int
		KnownSpam   bool
	}

	ReportResult struct {
		ReportCount int
		Threshold   int
		AutoBlocked bool
		Duplicate   bool
	}

	// Engine matches incoming images against the fingerprint store.
	Engine struct {
		cfg    config.Fingerprint
		store  store
		flight singleflight.Group
		logger *log.Entry
	}
)

func NewEngine(cfg config.Fingerprint, store store) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		logger: log.WithField("context", "fingerprint"),
	}
}

// Fingerprint gates the payload size, decodes and hashes. Unreadable data
// yields ErrDecode; the caller treats that as "skip the check".
func (e *Engine) Fingerprint(data []byte) (Digest, error) {
	if int64(len(data)) > e.cfg.MaxImageBytes {
		return Digest{}, errors.Wrapf(werrors.ErrInvalidInput, "image too large (%d bytes)", len(data))
	}
	img, err := Decode(data)
	if err != nil {
		return Digest{}, err
	}
	return Hash(img), nil
}

// Check finds the stored fingerprint nearest to the digest, or inserts a
// new record seeded with the poster as first-seen. Concurrent posts of the
// same new image collapse into one insert: the flight is keyed by the
// perceptual hash and the store upserts on that same key.
func (e *Engine) Check(ctx context.Context, digest Digest, poster Poster) (*Match, error) {
	if exact, err := e.store.GetFingerprintByPHash(ctx, digest.PHashHex()); err != nil {
		return nil, errors.Wrap(err, "exact lookup")
	} else if exact != nil {
		return e.recordMatch(ctx, exact, poster, 0, true)
	}

	nearest, distance, err := e.scan(ctx, digest)
	if err != nil {
		return nil, err
	}
	if nearest != nil {
		return e.recordMatch(ctx, nearest, poster, distance, false)
	}

	v, err, _ := e.flight.Do(digest.PHashHex(), func() (interface{}, error) {
		fp := &db.Fingerprint{
			DHash:              digest.DHashHex(),
			PHash:              digest.PHashHex(),
			AHash:              digest.AHashHex(),
			TimesPosted:        1,
			UniquePosters:      1,
			FirstSeenUserID:    poster.UserID,
			FirstSeenChatID:    poster.ChatID,
			FirstSeenMessageID: poster.MessageID,
			FirstSeenAt:        time.Now(),
		}
		if _, err := e.store.InsertFingerprint(ctx, fp); err != nil {
			return nil, errors.Wrap(err, "insert fingerprint")
		}
		if _, err := e.store.RecordFingerprintPoster(ctx, fp.ID, poster.UserID); err != nil {
			e.logger.WithError(err).Warn("failed to record first poster")
		}
		return &Match{Fingerprint: fp, New: true}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Match), nil
}

func (e *Engine) recordMatch(ctx context.Context, fp *db.Fingerprint, poster Poster, distance int, exact bool) (*Match, error) {
	if err := e.store.IncrementTimesPosted(ctx, fp.ID); err != nil {
		e.logger.WithError(err).Warn("failed to bump times posted")
	}
	if _, err := e.store.RecordFingerprintPoster(ctx, fp.ID, poster.UserID); err != nil {
		e.logger.WithError(err).Warn("failed to record poster")
	}

	kind := "near"
	if exact {
		kind = "exact"
	}
	if fp.IsSpam {
		kind = "known_spam"
	}
	observability.RecordImageMatch(kind)

	return &Match{
		Fingerprint: fp,
		Exact:       exact,
		Distance:    distance,
		KnownSpam:   fp.IsSpam,
	}, nil
}

// scan walks stored fingerprints in batches and returns the nearest one
// within the match distance.
func (e *Engine) scan(ctx context.Context, digest Digest) (*db.Fingerprint, int, error) {
	var (
		best     *db.Fingerprint
		bestDist = e.cfg.MatchDistance
	)

	for offset := 0; ; offset += e.cfg.ScanBatchSize {
		batch, err := e.store.ListFingerprints(ctx, offset, e.cfg.ScanBatchSize)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan fingerprints")
		}
		for _, fp := range batch {
			stored, ok := parseDigest(fp)
			if !ok {
				continue
			}
			if d := digest.Distance(stored); d < bestDist || (best == nil && d == bestDist && d < e.cfg.MatchDistance) {
				best, bestDist = fp, d
			}
		}
		if len(batch) < e.cfg.ScanBatchSize {
			break
		}
	}

	if best == nil || bestDist >= e.cfg.MatchDistance {
		return nil, 0, nil
	}
	return best, bestDist, nil
}

// Report files a community report. Repeat reports by the same reporter
// within the cooldown window are not double-counted. Crossing the report
// threshold promotes the fingerprint to spam, so subsequent matches return
// the known-spam signal.
func (e *Engine) Report(ctx context.Context, fingerprintID, reporterID int64, reason string) (*ReportResult, error) {
	fp, err := e.store.GetFingerprintByID(ctx, fingerprintID)
	if err != nil {
		return nil, errors.Wrap(err, "get fingerprint")
	}
	if fp == nil {
		return nil, werrors.ErrNotFound
	}

	since := time.Now().Add(-e.cfg.ReportCooldown)
	recent, err := e.store.CountRecentReportsBy(ctx, fingerprintID, reporterID, since)
	if err != nil {
		return nil, errors.Wrap(err, "count recent reports")
	}
	if recent > 0 {
		return &ReportResult{
			ReportCount: fp.ReportCount,
			Threshold:   e.cfg.ReportThreshold,
			Duplicate:   true,
		}, nil
	}

	if err := e.store.InsertReport(ctx, &db.ImageReport{
		ID:            uuid.New(),
		FingerprintID: fingerprintID,
		ReporterID:    reporterID,
		Reason:        reason,
		ReportedAt:    time.Now(),
	}); err != nil {
		return nil, errors.Wrap(err, "insert report")
	}

	count := fp.ReportCount + 1
	result := &ReportResult{ReportCount: count, Threshold: e.cfg.ReportThreshold}
	if count >= e.cfg.ReportThreshold && !fp.IsSpam {
		if err := e.store.PromoteFingerprintSpam(ctx, fingerprintID, spamCategoryReported); err != nil {
			return nil, errors.Wrap(err, "promote fingerprint")
		}
		result.AutoBlocked = true
	}
	return result, nil
}

func parseDigest(fp *db.Fingerprint) (Digest, bool) {
	d, okD := parseHex(fp.DHash)
	p, okP := parseHex(fp.PHash)
	a, okA := parseHex(fp.AHash)
	if !okD || !okP || !okA {
		return Digest{}, false
	}
	return Digest{DHash: d, PHash: p, AHash: a}, true
}

func parseHex(s string) (uint64, bool) {
	var v uint64
	if len(s) != 16 {
		return 0, false
	}
	for _, c := range s {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint64(c-'a') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
