package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/artpar/toolgate/adapters/clock"
)

func TestReal_NowIsUTC(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", c.Now(), want)
	}

	local := time.Date(2025, 1, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	c.Set(local)
	if c.Now().Location() != time.UTC || !c.Now().Equal(local) {
		t.Errorf("Set() should store the instant in UTC, got %v", c.Now())
	}
}

func TestFake_NextDay(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		offset time.Duration
		want   time.Time
	}{
		{
			name:  "mid day",
			start: time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC),
			want:  time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month rollover with offset",
			start:  time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC),
			offset: time.Second,
			want:   time.Date(2024, 3, 1, 0, 0, 1, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.NewFake(tt.start)
			c.NextDay(tt.offset)
			if !c.Now().Equal(tt.want) {
				t.Errorf("NextDay() = %v, want %v", c.Now(), tt.want)
			}
		})
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Now()
				c.Advance(time.Second)
			}
		}()
	}
	wg.Wait()
}
