package history

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/wardenbot/warden/internal/db"
)

type fakePersistence struct {
	appended []*db.MessageEvent
	cleaned  []time.Time
	fail     bool
}

func (f *fakePersistence) AppendMessageHistory(ctx context.Context, event *db.MessageEvent) error {
	if f.fail {
		return errors.New("store down")
	}
	f.appended = append(f.appended, event)
	return nil
}

func (f *fakePersistence) CleanupMessageHistory(ctx context.Context, olderThan time.Time) error {
	f.cleaned = append(f.cleaned, olderThan)
	return nil
}

func record(t *testing.T, s *Store, userID, chatID int64, hash string, at time.Time) {
	t.Helper()
	if err := s.Record(context.Background(), &db.MessageEvent{
		MessageID:   at.UnixNano(),
		UserID:      userID,
		ChatID:      chatID,
		ContentHash: hash,
		CreatedAt:   at,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestCountsFilterByWindowAndHash(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Hour, 512, nil)
	now := time.Now()

	record(t, s, 1, 10, "aaa", now.Add(-2*time.Second))
	record(t, s, 1, 10, "aaa", now.Add(-time.Second))
	record(t, s, 1, 20, "aaa", now)
	record(t, s, 1, 10, "bbb", now)
	record(t, s, 1, 10, "old", now.Add(-30*time.Minute))
	record(t, s, 2, 10, "aaa", now)

	if got := s.CountRecent(1, 10*time.Second); got != 4 {
		t.Errorf("CountRecent = %d, want 4", got)
	}
	if got := s.CountDuplicates(1, "aaa", 10*time.Second); got != 3 {
		t.Errorf("CountDuplicates = %d, want 3", got)
	}
	if got := s.CountDistinctChannels(1, "aaa", 10*time.Second); got != 2 {
		t.Errorf("CountDistinctChannels = %d, want 2", got)
	}
	if got := s.CountRecent(3, 10*time.Second); got != 0 {
		t.Errorf("CountRecent for unseen user = %d, want 0", got)
	}
}

func TestTrimBoundsWindowSize(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Hour, 3, nil)
	now := time.Now()

	for i := 0; i < 10; i++ {
		record(t, s, 1, 10, "h", now.Add(time.Duration(i)*time.Millisecond))
	}

	if got := s.CountRecent(1, time.Hour); got != 3 {
		t.Errorf("window kept %d entries, want 3", got)
	}
}

func TestTrimDropsExpiredEntries(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Minute, 512, nil)
	now := time.Now()

	record(t, s, 1, 10, "h", now.Add(-2*time.Minute))
	record(t, s, 1, 10, "h", now)

	if got := s.CountRecent(1, time.Hour); got != 1 {
		t.Errorf("kept %d entries, want 1", got)
	}
}

func TestRecordWritesThrough(t *testing.T) {
	t.Parallel()
	persistence := &fakePersistence{}
	s := NewStore(time.Hour, 512, persistence)

	record(t, s, 1, 10, "h", time.Now())
	if len(persistence.appended) != 1 {
		t.Fatalf("persisted %d events, want 1", len(persistence.appended))
	}
}

func TestRecordReturnsPersistenceErrorButKeepsMemory(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Hour, 512, &fakePersistence{fail: true})

	err := s.Record(context.Background(), &db.MessageEvent{
		UserID: 1, ChatID: 10, ContentHash: "h", CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if got := s.CountRecent(1, time.Hour); got != 1 {
		t.Errorf("in-memory window has %d entries, want 1", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Hour, 512, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
