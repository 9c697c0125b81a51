// Package schedule computes how long to wait before the next move is played.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

var ErrCadence = errors.New("schedule: set exactly one of interval seconds or posts per day")

// Cadence returns the wait until the next trigger, measured from now.
type Cadence interface {
	Next(now time.Time) time.Duration
	String() string
}

// Interval waits a fixed duration between triggers.
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(time.Time) time.Duration { return i.Every }

func (i Interval) String() string { return fmt.Sprintf("every %s", i.Every) }

// PerDayUTC triggers PostsPerDay times a day on slots aligned to UTC midnight.
type PerDayUTC struct {
	PostsPerDay int
}

const day = 24 * time.Hour

// Next returns the time until the next slot strictly after now.
func (p PerDayUTC) Next(now time.Time) time.Duration {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	slot := day / time.Duration(p.PostsPerDay)
	elapsed := utc.Sub(midnight)
	next := (elapsed/slot + 1) * slot
	return midnight.Add(next).Sub(utc)
}

func (p PerDayUTC) String() string { return fmt.Sprintf("%d per day (UTC)", p.PostsPerDay) }

// New builds a cadence from exactly one positive setting.
func New(intervalSeconds, postsPerDay int) (Cadence, error) {
	switch {
	case intervalSeconds > 0 && postsPerDay > 0:
		return nil, ErrCadence
	case intervalSeconds > 0:
		return Interval{Every: time.Duration(intervalSeconds) * time.Second}, nil
	case postsPerDay > 0:
		return PerDayUTC{PostsPerDay: postsPerDay}, nil
	default:
		return nil, ErrCadence
	}
}
