package tariff

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.June, 12, hour, minute, 0, 0, time.UTC)
}

func TestIsPeakBoundaries(t *testing.T) {
	s := Default()
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{5, 59, false},
		{6, 0, true},
		{9, 59, true},
		{10, 0, false},
		{14, 0, false},
		{17, 59, false},
		{18, 0, true},
		{21, 59, true},
		{22, 0, false},
	}
	for _, tc := range cases {
		if got := s.IsPeak(at(tc.hour, tc.minute)); got != tc.want {
			t.Fatalf("IsPeak(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}
}

func TestBandAndRate(t *testing.T) {
	s := Default()
	if s.Band(at(7, 0)) != BandPeak {
		t.Fatalf("07:00 should be peak")
	}
	if s.Band(at(23, 0)) != BandOffPeak || s.Band(at(3, 0)) != BandOffPeak {
		t.Fatalf("night hours should be off-peak")
	}
	if s.Band(at(13, 0)) != BandNormal {
		t.Fatalf("13:00 should be normal")
	}
	if !s.RateAt(at(2, 0)).Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("off-peak rate mismatch: %s", s.RateAt(at(2, 0)))
	}
	if !s.RateAt(at(19, 0)).Equal(decimal.NewFromInt(7)) {
		t.Fatalf("peak rate mismatch: %s", s.RateAt(at(19, 0)))
	}
}

func TestParseWindows(t *testing.T) {
	windows, err := ParseWindows([]string{"6-10", " 22-6 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if !windows[1].Contains(23) || !windows[1].Contains(0) || windows[1].Contains(6) {
		t.Fatalf("wrapping window misbehaves: %v", windows[1])
	}

	for _, bad := range []string{"6", "a-10", "6-25", "7-7"} {
		if _, err := ParseWindows([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
