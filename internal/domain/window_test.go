package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "midday rolls to next day",
			now:  time.Date(2025, 3, 10, 14, 30, 12, 0, time.UTC),
			want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly midnight rolls a full day forward",
			now:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last day of month crosses month boundary",
			now:  time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last day of year crosses year boundary",
			now:  time.Date(2025, 12, 31, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextMidnight(tt.now, time.UTC)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestNextMidnight_NonUTCZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 20:00 UTC on March 10 is already 01:30 on March 11 in Kolkata, so the
	// next local midnight is March 12.
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	got := NextMidnight(now, loc)
	want := time.Date(2025, 3, 12, 0, 0, 0, 0, loc)
	assert.True(t, got.Equal(want), "got %v, want %v", got, want)
}

func TestNextMonthStart(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid-month",
			now:  time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC),
			want: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first instant of month still advances",
			now:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december wraps to january",
			now:  time.Date(2025, 12, 20, 12, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextMonthStart(tt.now, time.UTC)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestProExpiry(t *testing.T) {
	now := time.Date(2025, 4, 2, 18, 45, 0, 0, time.UTC)
	got := ProExpiry(now, ProDurationDays)
	want := time.Date(2025, 5, 2, 18, 45, 0, 0, time.UTC)
	assert.True(t, got.Equal(want), "expiry keeps time-of-day: got %v, want %v", got, want)
}
