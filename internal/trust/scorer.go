package trust

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db"
)

type store interface {
	GetUser(ctx context.Context, userID int64) (*db.UserMeta, error)
	GetTrust(ctx context.Context, userID int64) (*db.TrustRecord, error)
	SaveTrust(ctx context.Context, record *db.TrustRecord) error
	GetActiveWarnings(ctx context.Context, userID int64) ([]*db.Warning, error)
}

// Scorer reads cached trust records and recomputes them when stale.
// Concurrent recomputes for the same user collapse into one flight.
type Scorer struct {
	calc             *Calculator
	store            store
	recalculateAfter time.Duration
	flight           singleflight.Group
	logger           *log.Entry
}

func NewScorer(calc *Calculator, store store, cfg config.Trust) *Scorer {
	return &Scorer{
		calc:             calc,
		store:            store,
		recalculateAfter: cfg.RecalculateAfter,
		logger:           log.WithField("context", "trust"),
	}
}

func (s *Scorer) Calculator() *Calculator {
	return s.calc
}

// Components returns the current trust components for a user, recomputing
// and persisting when the cached record is missing or older than the
// recalculation interval. It degrades instead of failing: on a store error
// the most conservative components are returned alongside the error.
func (s *Scorer) Components(ctx context.Context, userID int64) (Components, error) {
	record, err := s.store.GetTrust(ctx, userID)
	if err != nil {
		return conservative(), errors.Wrap(err, "get trust record")
	}
	if record != nil && time.Since(record.LastCalculated) < s.recalculateAfter {
		return fromRecord(record), nil
	}
	return s.Recalculate(ctx, userID)
}

// Recalculate always recomputes from raw inputs and persists the result.
func (s *Scorer) Recalculate(ctx context.Context, userID int64) (Components, error) {
	v, err, _ := s.flight.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		return s.recalculate(ctx, userID)
	})
	if err != nil {
		return conservative(), err
	}
	return v.(Components), nil
}

// TierOf is the narrow read the spam detector depends on. It never fails:
// store errors map to the lowest tier with a logged degradation.
func (s *Scorer) TierOf(ctx context.Context, userID int64) string {
	components, err := s.Components(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("trust lookup degraded, assuming lowest tier")
		return TierNew
	}
	return components.Tier
}

func (s *Scorer) recalculate(ctx context.Context, userID int64) (Components, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return conservative(), errors.Wrap(err, "get user")
	}

	inputs := Inputs{}
	if user != nil {
		inputs.AccountCreatedAt = user.FirstSeenAt
		inputs.JoinedAt = user.JoinedAt
		inputs.TotalMessages = user.TotalMessages
		inputs.TotalReactions = user.TotalReactions
		inputs.StreakDays = user.StreakDays
		inputs.Reputation = user.Reputation
	}

	warnings, err := s.store.GetActiveWarnings(ctx, userID)
	if err != nil {
		return conservative(), errors.Wrap(err, "get warnings")
	}
	for _, warning := range warnings {
		inputs.Warnings = append(inputs.Warnings, WarningInput{
			Severity: warning.Severity,
			IssuedAt: warning.IssuedAt,
		})
	}

	components := s.calc.Calculate(inputs, time.Now())
	if err := s.store.SaveTrust(ctx, toRecord(userID, components)); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to persist trust record")
	}
	return components, nil
}

func conservative() Components {
	return Components{Tier: TierNew}
}

func fromRecord(record *db.TrustRecord) Components {
	return Components{
		AccountAge:     record.AccountAge,
		ChatAge:        record.ChatAge,
		MessageCount:   record.MessageCount,
		MessageQuality: record.MessageQuality,
		Consistency:    record.Consistency,
		WarningPenalty: record.WarningPenalty,
		Reputation:     record.Reputation,
		Overall:        record.Overall,
		Tier:           record.Tier,
		LastCalculated: record.LastCalculated,
	}
}

func toRecord(userID int64, components Components) *db.TrustRecord {
	return &db.TrustRecord{
		UserID:         userID,
		Overall:        components.Overall,
		AccountAge:     components.AccountAge,
		ChatAge:        components.ChatAge,
		MessageCount:   components.MessageCount,
		MessageQuality: components.MessageQuality,
		Consistency:    components.Consistency,
		WarningPenalty: components.WarningPenalty,
		Reputation:     components.Reputation,
		Tier:           components.Tier,
		LastCalculated: components.LastCalculated,
	}
}
