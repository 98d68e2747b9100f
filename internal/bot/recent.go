package bot

import (
	"container/list"
	"sync"
)

type messageKey struct {
	chatID    int64
	messageID int64
}

// recentFingerprints remembers which fingerprint a recently posted image
// resolved to, so a /report replying to that message can find it. Bounded
// LRU; old entries fall off and their messages become unreportable, which
// is acceptable for a command aimed at fresh spam.
type recentFingerprints struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	index map[messageKey]*list.Element
}

type recentEntry struct {
	key           messageKey
	fingerprintID int64
}

func newRecentFingerprints(capacity int) *recentFingerprints {
	return &recentFingerprints{
		cap:   capacity,
		order: list.New(),
		index: make(map[messageKey]*list.Element, capacity),
	}
}

func (r *recentFingerprints) Put(chatID, messageID, fingerprintID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := messageKey{chatID: chatID, messageID: messageID}
	if el, ok := r.index[key]; ok {
		el.Value.(*recentEntry).fingerprintID = fingerprintID
		r.order.MoveToFront(el)
		return
	}
	r.index[key] = r.order.PushFront(&recentEntry{key: key, fingerprintID: fingerprintID})
	if r.order.Len() > r.cap {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.index, oldest.Value.(*recentEntry).key)
	}
}

func (r *recentFingerprints) Get(chatID, messageID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.index[messageKey{chatID: chatID, messageID: messageID}]
	if !ok {
		return 0, false
	}
	r.order.MoveToFront(el)
	return el.Value.(*recentEntry).fingerprintID, true
}
