package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEligibleNowSoftWindow(t *testing.T) {
	tests := []struct {
		name string
		hour int
		want bool
	}{
		{"before window opens", 1, false},
		{"window start", 2, true},
		{"inside window", 4, true},
		{"after window closes, still eligible", 6, true},
		{"late evening", 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligibleNow(tt.hour, 2, 5, false))
		})
	}
}

func TestEligibleNowStrictWindow(t *testing.T) {
	tests := []struct {
		name  string
		hour  int
		start int
		end   int
		want  bool
	}{
		{"before window", 1, 2, 5, false},
		{"window start", 2, 2, 5, true},
		{"inside window", 4, 2, 5, true},
		{"window end is exclusive", 5, 2, 5, false},
		{"after window", 6, 2, 5, false},
		{"wrap: late evening side", 23, 22, 2, true},
		{"wrap: early morning side", 1, 22, 2, true},
		{"wrap: outside", 12, 22, 2, false},
		{"degenerate window is always open", 9, 3, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligibleNow(tt.hour, tt.start, tt.end, true))
		})
	}
}

func TestHourInTimeZone(t *testing.T) {
	now := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, hourInTimeZone(now, ""))
	assert.Equal(t, 10, hourInTimeZone(now, "Asia/Tokyo"))

	// An unknown zone falls back to UTC instead of erroring.
	assert.Equal(t, 1, hourInTimeZone(now, "Mars/Olympus_Mons"))
}

func TestEditionDateInTimeZone(t *testing.T) {
	// 23:30 UTC on the 9th is already the 10th in Tokyo.
	now := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

	utcDate := editionDateInTimeZone(now, "")
	assert.Equal(t, "2026-03-09", dateKey(utcDate))

	tokyoDate := editionDateInTimeZone(now, "Asia/Tokyo")
	assert.Equal(t, "2026-03-10", dateKey(tokyoDate))

	// Edition dates are normalized to UTC midnight regardless of zone.
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), tokyoDate)
}
