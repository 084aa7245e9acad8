package core

import (
	"sort"
	"time"
)

const (
	hourKeyLayout = "2006-01-02-15"
	dayKeyLayout  = "2006-01-02"

	// HourlyRetention is how long hourly buckets are kept.
	HourlyRetention = 24 * time.Hour
	// DailyRetention is how long daily buckets are kept.
	DailyRetention = 7 * 24 * time.Hour
)

// HourKey returns the UTC hour bucket key ("YYYY-MM-DD-HH") for t.
func HourKey(t time.Time) string {
	return t.UTC().Format(hourKeyLayout)
}

// DayKey returns the UTC day bucket key ("YYYY-MM-DD") for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// UserRecord tracks sends to one recipient during a UTC day.
type UserRecord struct {
	Count               uint   `json:"count" cbor:"1,keyasint"`
	LastResetDay        string `json:"last_reset_day" cbor:"2,keyasint"`
	ConsecutiveFailures uint   `json:"consecutive_failures" cbor:"3,keyasint"`
}

// RateLimitState holds the persisted send counters.
type RateLimitState struct {
	Hourly       map[string]uint        `json:"hourly" cbor:"1,keyasint"`
	Daily        map[string]uint        `json:"daily" cbor:"2,keyasint"`
	PerUser      map[string]*UserRecord `json:"user_messages" cbor:"3,keyasint"`
	LastSendTime time.Time              `json:"last_send_time" cbor:"4,keyasint"`
}

// NewRateLimitState returns an empty state.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{
		Hourly:  map[string]uint{},
		Daily:   map[string]uint{},
		PerUser: map[string]*UserRecord{},
	}
}

// Normalize replaces nil maps with empty ones and drops nil user records.
func (s *RateLimitState) Normalize() {
	if s.Hourly == nil {
		s.Hourly = map[string]uint{}
	}
	if s.Daily == nil {
		s.Daily = map[string]uint{}
	}
	if s.PerUser == nil {
		s.PerUser = map[string]*UserRecord{}
	}
	for name, rec := range s.PerUser {
		if rec == nil {
			delete(s.PerUser, name)
		}
	}
}

// Clone returns a deep copy.
func (s *RateLimitState) Clone() *RateLimitState {
	if s == nil {
		return NewRateLimitState()
	}
	out := &RateLimitState{
		Hourly:       make(map[string]uint, len(s.Hourly)),
		Daily:        make(map[string]uint, len(s.Daily)),
		PerUser:      make(map[string]*UserRecord, len(s.PerUser)),
		LastSendTime: s.LastSendTime,
	}
	for k, v := range s.Hourly {
		out.Hourly[k] = v
	}
	for k, v := range s.Daily {
		out.Daily[k] = v
	}
	for k, v := range s.PerUser {
		if v == nil {
			continue
		}
		rec := *v
		out.PerUser[k] = &rec
	}
	return out
}

// HourCount returns the count for the hour bucket containing t.
func (s *RateLimitState) HourCount(t time.Time) uint {
	return s.Hourly[HourKey(t)]
}

// DayCount returns the count for the day bucket containing t.
func (s *RateLimitState) DayCount(t time.Time) uint {
	return s.Daily[DayKey(t)]
}

// User returns the record for recipient, creating it or resetting it when its
// day is older than day.
func (s *RateLimitState) User(recipient, day string) *UserRecord {
	rec, ok := s.PerUser[recipient]
	if !ok || rec == nil {
		rec = &UserRecord{LastResetDay: day}
		s.PerUser[recipient] = rec
		return rec
	}
	if rec.LastResetDay < day {
		rec.Count = 0
		rec.ConsecutiveFailures = 0
		rec.LastResetDay = day
	}
	return rec
}

// Prune drops hourly buckets older than 24h, daily buckets older than 7d and
// per-user records from previous days. Keys are fixed-width so lexical order
// matches time order.
func (s *RateLimitState) Prune(now time.Time) {
	hourFloor := HourKey(now.Add(-HourlyRetention))
	for key := range s.Hourly {
		if key < hourFloor {
			delete(s.Hourly, key)
		}
	}

	dayFloor := DayKey(now.Add(-DailyRetention))
	for key := range s.Daily {
		if key < dayFloor {
			delete(s.Daily, key)
		}
	}

	today := DayKey(now)
	for name, rec := range s.PerUser {
		if rec == nil || rec.LastResetDay < today {
			delete(s.PerUser, name)
		}
	}
}

// BucketKeys returns the hourly and daily keys in ascending order.
func (s *RateLimitState) BucketKeys() (hourly []string, daily []string) {
	for k := range s.Hourly {
		hourly = append(hourly, k)
	}
	for k := range s.Daily {
		daily = append(daily, k)
	}
	sort.Strings(hourly)
	sort.Strings(daily)
	return hourly, daily
}

// BreakerState is the persisted circuit breaker state.
type BreakerState struct {
	Failures    uint       `json:"failures" cbor:"1,keyasint"`
	LastFailure *time.Time `json:"last_failure,omitempty" cbor:"2,keyasint,omitempty"`
}
