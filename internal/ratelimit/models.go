package ratelimit

import "time"

// Period names one of the two issuance windows.
type Period string

const (
	PeriodHour Period = "hour"
	PeriodDay  Period = "day"
)

// Window returns the period's duration.
func (p Period) Window() time.Duration {
	if p == PeriodDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// Denial reports which window rejected a reservation. A nil Denial means
// the reservation was taken.
type Denial struct {
	Limit  int
	Period Period
	// ResetAt is when the current bucket rolls over.
	ResetAt time.Time
}

// Limits carries the configured maxima for both windows.
type Limits struct {
	MaxPerHour int
	MaxPerDay  int
}

// Bucket addressing: counters are keyed by floor(now/window), so stale
// buckets stop mattering without an expiry sweep.
func hourBucket(now time.Time) int64 { return now.Unix() / 3600 }
func dayBucket(now time.Time) int64  { return now.Unix() / 86400 }

func hourReset(now time.Time) time.Time {
	return time.Unix((hourBucket(now)+1)*3600, 0)
}

func dayReset(now time.Time) time.Time {
	return time.Unix((dayBucket(now)+1)*86400, 0)
}
