package history

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wardenbot/warden/internal/db"
)

const shardCount = 64

type (
	// Persistence is the narrow slice of db.Client the store writes through
	// to, so the rate-limiting memory survives restarts.
	Persistence interface {
		AppendMessageHistory(ctx context.Context, event *db.MessageEvent) error
		CleanupMessageHistory(ctx context.Context, olderThan time.Time) error
	}

	entry struct {
		chatID      int64
		contentHash string
		at          time.Time
	}

	shard struct {
		mu    sync.Mutex
		users map[int64][]entry
	}

	// Store keeps a bounded, time-ordered window of recent message events
	// per user. Appends for the same user serialize on the user's shard;
	// reads filter expired entries lazily, a periodic sweep bounds memory.
	Store struct {
		retention  time.Duration
		maxPerUser int
		sweepEvery time.Duration
		store      Persistence
		shards     [shardCount]shard

		runMutex  sync.Mutex
		runCancel context.CancelFunc
		logger    *log.Entry
	}
)

func NewStore(retention time.Duration, maxPerUser int, persistence Persistence) *Store {
	s := &Store{
		retention:  retention,
		maxPerUser: maxPerUser,
		sweepEvery: 10 * time.Minute,
		store:      persistence,
		logger:     log.WithField("context", "history"),
	}
	for i := range s.shards {
		s.shards[i].users = make(map[int64][]entry)
	}
	return s
}

func (s *Store) shardFor(userID int64) *shard {
	return &s.shards[uint64(userID)%shardCount]
}

// Record appends the event to the user's window and writes it through to
// persistence. The in-memory append never fails; a persistence error is
// returned so the caller can degrade per its fail-open policy.
func (s *Store) Record(ctx context.Context, event *db.MessageEvent) error {
	sh := s.shardFor(event.UserID)
	sh.mu.Lock()
	window := append(sh.users[event.UserID], entry{
		chatID:      event.ChatID,
		contentHash: event.ContentHash,
		at:          event.CreatedAt,
	})
	window = s.trim(window, event.CreatedAt)
	sh.users[event.UserID] = window
	sh.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.AppendMessageHistory(ctx, event)
}

func (s *Store) CountRecent(userID int64, window time.Duration) int {
	return s.count(userID, window, func(entry) bool { return true })
}

func (s *Store) CountDuplicates(userID int64, contentHash string, window time.Duration) int {
	return s.count(userID, window, func(e entry) bool { return e.contentHash == contentHash })
}

func (s *Store) CountDistinctChannels(userID int64, contentHash string, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	channels := make(map[int64]struct{})

	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, e := range sh.users[userID] {
		if e.at.Before(cutoff) || e.contentHash != contentHash {
			continue
		}
		channels[e.chatID] = struct{}{}
	}
	return len(channels)
}

func (s *Store) count(userID int64, window time.Duration, match func(entry) bool) int {
	cutoff := time.Now().Add(-window)
	n := 0

	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, e := range sh.users[userID] {
		if e.at.Before(cutoff) {
			continue
		}
		if match(e) {
			n++
		}
	}
	return n
}

// trim drops entries beyond retention and keeps at most maxPerUser newest
// entries. Windows are appended in arrival order, which is close enough to
// time order for eviction purposes.
func (s *Store) trim(window []entry, now time.Time) []entry {
	cutoff := now.Add(-s.retention)
	kept := window[:0]
	for _, e := range window {
		if e.at.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) > s.maxPerUser {
		kept = kept[len(kept)-s.maxPerUser:]
	}
	return kept
}

func (s *Store) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.runCancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	go func() {
		ticker := time.NewTicker(s.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.sweep(runCtx)
			}
		}
	}()
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	_ = ctx
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	return nil
}

func (s *Store) sweep(ctx context.Context) {
	now := time.Now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for userID, window := range sh.users {
			trimmed := s.trim(window, now)
			if len(trimmed) == 0 {
				delete(sh.users, userID)
				continue
			}
			sh.users[userID] = trimmed
		}
		sh.mu.Unlock()
	}

	if s.store == nil {
		return
	}
	if err := s.store.CleanupMessageHistory(ctx, now.Add(-s.retention)); err != nil {
		s.logger.WithError(err).Warn("failed to clean up persisted history")
	}
}
