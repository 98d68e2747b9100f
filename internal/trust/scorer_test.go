package trust

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db"
)

type fakeTrustStore struct {
	user     *db.UserMeta
	trust    *db.TrustRecord
	warnings []*db.Warning
	failGet  bool

	saved      *db.TrustRecord
	userReads  int
	trustReads int
}

func (f *fakeTrustStore) GetUser(ctx context.Context, userID int64) (*db.UserMeta, error) {
	f.userReads++
	return f.user, nil
}

func (f *fakeTrustStore) GetTrust(ctx context.Context, userID int64) (*db.TrustRecord, error) {
	f.trustReads++
	if f.failGet {
		return nil, errors.New("store down")
	}
	return f.trust, nil
}

func (f *fakeTrustStore) SaveTrust(ctx context.Context, record *db.TrustRecord) error {
	f.saved = record
	return nil
}

func (f *fakeTrustStore) GetActiveWarnings(ctx context.Context, userID int64) ([]*db.Warning, error) {
	return f.warnings, nil
}

func newTestScorer(store *fakeTrustStore) *Scorer {
	cfg := config.Trust{RecalculateAfter: 24 * time.Hour, WarningDecayDays: 30, MinReactionRatio: 0.1}
	return NewScorer(NewCalculator(config.DefaultRules(), cfg), store, cfg)
}

func TestComponentsUsesFreshRecord(t *testing.T) {
	t.Parallel()
	store := &fakeTrustStore{
		trust: &db.TrustRecord{
			UserID:         7,
			Overall:        65,
			Tier:           TierTrusted,
			LastCalculated: time.Now(),
		},
	}
	scorer := newTestScorer(store)

	components, err := scorer.Components(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if components.Tier != TierTrusted {
		t.Errorf("tier = %q, want %q", components.Tier, TierTrusted)
	}
	if store.userReads != 0 {
		t.Errorf("fresh record triggered %d recomputes", store.userReads)
	}
}

func TestComponentsRecomputesStaleRecord(t *testing.T) {
	t.Parallel()
	joined := time.Now().Add(-200 * 24 * time.Hour)
	store := &fakeTrustStore{
		trust: &db.TrustRecord{
			UserID:         7,
			Overall:        65,
			Tier:           TierTrusted,
			LastCalculated: time.Now().Add(-48 * time.Hour),
		},
		user: &db.UserMeta{
			ID:             7,
			FirstSeenAt:    &joined,
			JoinedAt:       &joined,
			TotalMessages:  600,
			TotalReactions: 90,
			StreakDays:     40,
			Reputation:     50,
		},
	}
	scorer := newTestScorer(store)

	components, err := scorer.Components(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if store.userReads == 0 {
		t.Fatal("stale record was not recomputed")
	}
	if store.saved == nil {
		t.Fatal("recomputed record was not persisted")
	}
	if store.saved.Overall != components.Overall {
		t.Errorf("persisted overall %f differs from returned %f", store.saved.Overall, components.Overall)
	}
}

func TestTierOfDegradesToLowestTier(t *testing.T) {
	t.Parallel()
	scorer := newTestScorer(&fakeTrustStore{failGet: true})

	if got := scorer.TierOf(context.Background(), 7); got != TierNew {
		t.Errorf("degraded tier = %q, want %q", got, TierNew)
	}
}

func TestRecalculateForUnknownUser(t *testing.T) {
	t.Parallel()
	store := &fakeTrustStore{}
	scorer := newTestScorer(store)

	components, err := scorer.Recalculate(context.Background(), 99)
	if err != nil {
		t.Fatal(err)
	}
	if components.Tier != TierNew {
		t.Errorf("unknown user tier = %q, want %q", components.Tier, TierNew)
	}
	if components.Overall < 0 || components.Overall > 100 {
		t.Errorf("overall %f out of bounds", components.Overall)
	}
}
