package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if _, err := New(0, 0); !errors.Is(err, ErrCadence) {
		t.Fatalf("neither set: %v", err)
	}
	if _, err := New(60, 4); !errors.Is(err, ErrCadence) {
		t.Fatalf("both set: %v", err)
	}
	c, err := New(90, 0)
	if err != nil || c.Next(time.Now()) != 90*time.Second {
		t.Fatalf("interval: %v %v", c, err)
	}
	if c, err := New(0, 3); err != nil || c.(PerDayUTC).PostsPerDay != 3 {
		t.Fatalf("per day: %v %v", c, err)
	}
}

func TestPerDayUTC(t *testing.T) {
	p := PerDayUTC{PostsPerDay: 4}
	cases := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 6 * time.Hour},
		{time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC), time.Hour},
		{time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), 6 * time.Hour},
		{time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC), 30 * time.Minute},
	}
	for _, tc := range cases {
		if got := p.Next(tc.now); got != tc.want {
			t.Fatalf("Next(%s)=%s want %s", tc.now, got, tc.want)
		}
	}

	// local times are converted to UTC
	loc := time.FixedZone("UTC+9", 9*3600)
	if got := p.Next(time.Date(2024, 5, 1, 14, 0, 0, 0, loc)); got != time.Hour {
		t.Fatalf("zoned: %s", got)
	}
}

func TestPerDayUTC_AlwaysPositive(t *testing.T) {
	p := PerDayUTC{PostsPerDay: 7}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24*60; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		if d := p.Next(now); d <= 0 || d > day/7 {
			t.Fatalf("Next(%s)=%s out of range", now, d)
		}
	}
}
