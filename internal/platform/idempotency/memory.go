package idempotency

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records in a map. It backs the memory store driver, so
// replays do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live(id, now); ok {
		return reservationFor(existing, fingerprint)
	}
	record := newPendingRecord(key, fingerprint, now, ttl)
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := recordID(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	var prev *Record
	if existing, ok := s.records[id]; ok {
		prev = &existing
	}
	record, err := completed(prev, key, fingerprint, resp, now.UTC(), ttl)
	if err != nil {
		return err
	}
	s.records[id] = record
	return nil
}

// CleanupExpired removes the longest expired records first.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, record := range s.records {
		if record.expired(now) {
			expired = append(expired, id)
		}
	}
	slices.SortFunc(expired, func(a, b string) int {
		return cmp.Compare(s.records[a].ExpiresAt.UnixNano(), s.records[b].ExpiresAt.UnixNano())
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, id := range expired {
		delete(s.records, id)
	}
	return len(expired), nil
}

// Release forgets the key so a retry runs the handler again.
func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	delete(s.records, recordID(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) live(id string, now time.Time) (Record, bool) {
	record, ok := s.records[id]
	if !ok || record.expired(now) {
		return Record{}, false
	}
	return record, true
}
