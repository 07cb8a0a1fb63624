// Package tariff models the time-of-day electricity tariff used by the dashboard.
package tariff

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Band names a tariff period.
type Band string

const (
	BandPeak    Band = "peak"
	BandNormal  Band = "normal"
	BandOffPeak Band = "off-peak"
)

// Window is a half-open local-hour range [StartHour, EndHour). A window with
// StartHour > EndHour wraps past midnight.
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%d", w.StartHour, w.EndHour)
}

// Schedule maps a local time to a tariff band and rate.
type Schedule struct {
	PeakWindows    []Window
	OffPeakWindows []Window
	PeakRate       decimal.Decimal
	NormalRate     decimal.Decimal
	OffPeakRate    decimal.Decimal
}

// Default returns the tariff advertised by the dashboard: peak 06-10 and
// 18-22 at 7/kWh, off-peak 22-06 at 3.5/kWh, normal otherwise at 5/kWh.
func Default() Schedule {
	return Schedule{
		PeakWindows:    []Window{{StartHour: 6, EndHour: 10}, {StartHour: 18, EndHour: 22}},
		OffPeakWindows: []Window{{StartHour: 22, EndHour: 6}},
		PeakRate:       decimal.NewFromInt(7),
		NormalRate:     decimal.NewFromInt(5),
		OffPeakRate:    decimal.RequireFromString("3.5"),
	}
}

// IsPeak reports whether t's local hour is inside any peak window.
func (s Schedule) IsPeak(t time.Time) bool {
	return anyContains(s.PeakWindows, t.Hour())
}

// Band classifies t. Peak windows win over off-peak ones when they overlap.
func (s Schedule) Band(t time.Time) Band {
	hour := t.Hour()
	switch {
	case anyContains(s.PeakWindows, hour):
		return BandPeak
	case anyContains(s.OffPeakWindows, hour):
		return BandOffPeak
	default:
		return BandNormal
	}
}

// RateAt returns the per-kWh rate in effect at t.
func (s Schedule) RateAt(t time.Time) decimal.Decimal {
	switch s.Band(t) {
	case BandPeak:
		return s.PeakRate
	case BandOffPeak:
		return s.OffPeakRate
	default:
		return s.NormalRate
	}
}

func anyContains(windows []Window, hour int) bool {
	for _, w := range windows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

// ParseWindows parses entries of the form "6-10".
func ParseWindows(items []string) ([]Window, error) {
	windows := make([]Window, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		start, end, ok := strings.Cut(item, "-")
		if !ok {
			return nil, fmt.Errorf("window %q: expected START-END", item)
		}
		startHour, err := parseHour(start)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", item, err)
		}
		endHour, err := parseHour(end)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", item, err)
		}
		if startHour == endHour {
			return nil, fmt.Errorf("window %q is empty", item)
		}
		windows = append(windows, Window{StartHour: startHour, EndHour: endHour})
	}
	return windows, nil
}

func parseHour(v string) (int, error) {
	hour, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q", v)
	}
	if hour < 0 || hour > 24 {
		return 0, fmt.Errorf("hour %d out of range", hour)
	}
	return hour, nil
}
