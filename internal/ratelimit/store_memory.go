package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryBucketStore keeps fixed-window issuance counters per recipient.
// Check and increment happen inside one per-recipient critical section so
// two concurrent requests cannot both pass a boundary check. Not
// distributed; use RedisBucketStore when multiple instances share limits.
type InMemoryBucketStore struct {
	mu         sync.Mutex
	recipients map[string]*recipientCounters
}

// recipientCounters holds both window counters for one recipient. Each
// recipient has its own lock so unrelated recipients never contend.
type recipientCounters struct {
	mu         sync.Mutex
	hourBucket int64
	hourCount  int
	dayBucket  int64
	dayCount   int
}

// NewInMemoryBucketStore creates an empty in-memory store.
func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{recipients: make(map[string]*recipientCounters)}
}

// Reserve checks both windows and, when neither is exhausted, increments
// both counters atomically. On denial nothing is mutated.
func (s *InMemoryBucketStore) Reserve(ctx context.Context, recipient string, now time.Time, limits Limits) (*Denial, error) {
	return s.ReserveN(ctx, recipient, now, limits, 1)
}

// ReserveN consumes n slots in one critical section: either all n fit in
// both windows or nothing is mutated.
func (s *InMemoryBucketStore) ReserveN(ctx context.Context, recipient string, now time.Time, limits Limits, n int) (*Denial, error) {
	rc := s.countersFor(recipient)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	// Rolling into a new bucket resets that window's counter; old buckets
	// are unreachable once the key changes.
	if hb := hourBucket(now); rc.hourBucket != hb {
		rc.hourBucket, rc.hourCount = hb, 0
	}
	if db := dayBucket(now); rc.dayBucket != db {
		rc.dayBucket, rc.dayCount = db, 0
	}

	if rc.hourCount+n > limits.MaxPerHour {
		return &Denial{Limit: limits.MaxPerHour, Period: PeriodHour, ResetAt: hourReset(now)}, nil
	}
	if rc.dayCount+n > limits.MaxPerDay {
		return &Denial{Limit: limits.MaxPerDay, Period: PeriodDay, ResetAt: dayReset(now)}, nil
	}

	rc.hourCount += n
	rc.dayCount += n
	return nil, nil
}

// Release hands back n previously reserved slots. Counters never go
// below zero, so releasing into a rolled-over bucket is a no-op.
func (s *InMemoryBucketStore) Release(ctx context.Context, recipient string, now time.Time, n int) error {
	rc := s.countersFor(recipient)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.hourBucket == hourBucket(now) {
		rc.hourCount = max(rc.hourCount-n, 0)
	}
	if rc.dayBucket == dayBucket(now) {
		rc.dayCount = max(rc.dayCount-n, 0)
	}
	return nil
}

// Counts returns the current window counts for a recipient. Test and
// inspection hook.
func (s *InMemoryBucketStore) Counts(ctx context.Context, recipient string, now time.Time) (hour, day int, err error) {
	rc := s.countersFor(recipient)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.hourBucket == hourBucket(now) {
		hour = rc.hourCount
	}
	if rc.dayBucket == dayBucket(now) {
		day = rc.dayCount
	}
	return hour, day, nil
}

// Reset clears all counters for a recipient.
func (s *InMemoryBucketStore) Reset(ctx context.Context, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipients, recipient)
	return nil
}

func (s *InMemoryBucketStore) countersFor(recipient string) *recipientCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc := s.recipients[recipient]
	if rc == nil {
		rc = &recipientCounters{}
		s.recipients[recipient] = rc
	}
	return rc
}
