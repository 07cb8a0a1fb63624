package meter

import (
	"fmt"
	"time"

	"energy-meter/internal/tariff"
)

// AdvisoryType enumerates the advisory kinds; at most one of each is active.
type AdvisoryType string

const (
	TypeOptimalLaundry AdvisoryType = "optimal-laundry-time"
	TypePeakHourAlert  AdvisoryType = "peak-hour-alert"
	TypeUnusualSpike   AdvisoryType = "unusual-spike-detected"
)

// Severity of an advisory.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	laundryMessage   = "Consider running your washing machine after 10 PM. Off-peak rates are significantly cheaper."
	peakAlertMessage = "High usage detected during peak hours. Reduce consumption or shift activities."
	staticSpikeMsg   = "High energy usage detected at 2 PM yesterday (8.5 kWh vs normal 3.2 kWh)"
)

// Advisory is a user-facing suggestion flag.
type Advisory struct {
	ID               string       `json:"id"`
	Type             AdvisoryType `json:"type"`
	Message          string       `json:"message"`
	Severity         Severity     `json:"severity"`
	EstimatedSavings *float64     `json:"estimatedSavings,omitempty"`
	ActiveSince      time.Time    `json:"activeSince"`
}

// ChangeKind distinguishes activation from clearing.
type ChangeKind string

const (
	ChangeActivated ChangeKind = "activated"
	ChangeCleared   ChangeKind = "cleared"
)

// AdvisoryChange records one transition of an advisory type.
type AdvisoryChange struct {
	Kind     ChangeKind
	Advisory Advisory
	At       time.Time
}

// SpikeRule configures unusual-spike detection against the history baseline.
type SpikeRule struct {
	StaticDemo bool
	MinSamples int
	Factor     float64
	MinPowerKW float64
}

// Rules parameterise advisory evaluation.
type Rules struct {
	Schedule        tariff.Schedule
	PeakThresholdKW float64
	LaundrySavings  float64
	Spike           SpikeRule
}

// DefaultRules mirrors the dashboard defaults.
func DefaultRules() Rules {
	return Rules{
		Schedule:        tariff.Default(),
		PeakThresholdKW: 2.5,
		LaundrySavings:  45,
		Spike:           SpikeRule{MinSamples: 10, Factor: 2.5, MinPowerKW: 1},
	}
}

// EvalInput is everything the rules look at.
type EvalInput struct {
	Now             time.Time
	Power           float64
	BaselinePower   float64
	BaselineSamples int
}

// Evaluate returns the advisories whose trigger condition holds. It has no
// side effects; the same input always yields the same output.
func (r Rules) Evaluate(in EvalInput) []Advisory {
	out := make([]Advisory, 0, 3)
	isPeak := r.Schedule.IsPeak(in.Now)

	if isPeak {
		savings := r.LaundrySavings
		out = append(out, Advisory{
			ID:               string(TypeOptimalLaundry),
			Type:             TypeOptimalLaundry,
			Message:          laundryMessage,
			Severity:         SeverityHigh,
			EstimatedSavings: &savings,
		})
	}

	if isPeak && in.Power > r.PeakThresholdKW {
		out = append(out, Advisory{
			ID:       string(TypePeakHourAlert),
			Type:     TypePeakHourAlert,
			Message:  peakAlertMessage,
			Severity: SeverityHigh,
		})
	}

	if spike, ok := r.spike(in); ok {
		out = append(out, spike)
	}

	return out
}

func (r Rules) spike(in EvalInput) (Advisory, bool) {
	if r.Spike.StaticDemo {
		return Advisory{
			ID:       string(TypeUnusualSpike),
			Type:     TypeUnusualSpike,
			Message:  staticSpikeMsg,
			Severity: SeverityHigh,
		}, true
	}
	if in.BaselineSamples < r.Spike.MinSamples || in.BaselineSamples == 0 {
		return Advisory{}, false
	}
	if in.Power < r.Spike.MinPowerKW || in.BaselinePower <= 0 {
		return Advisory{}, false
	}
	ratio := in.Power / in.BaselinePower
	if ratio <= r.Spike.Factor {
		return Advisory{}, false
	}
	severity := SeverityMedium
	if ratio > 2*r.Spike.Factor {
		severity = SeverityHigh
	}
	return Advisory{
		ID:   string(TypeUnusualSpike),
		Type: TypeUnusualSpike,
		Message: fmt.Sprintf("Unusual spike: drawing %.2f kW, %.1fx the recent average of %.2f kW",
			in.Power, ratio, in.BaselinePower),
		Severity: severity,
	}, true
}

// AdvisorySet holds at most one active advisory per type, in activation order.
type AdvisorySet struct {
	items []Advisory
}

// Apply reconciles the set with the desired advisories: types no longer
// desired are removed, new types are appended, surviving ones keep their
// activation time but take the fresh message and severity.
func (s *AdvisorySet) Apply(desired []Advisory, now time.Time) []AdvisoryChange {
	want := make(map[AdvisoryType]Advisory, len(desired))
	for _, a := range desired {
		want[a.Type] = a
	}

	var changes []AdvisoryChange
	kept := s.items[:0]
	present := make(map[AdvisoryType]struct{}, len(s.items))
	for _, cur := range s.items {
		next, ok := want[cur.Type]
		if !ok {
			changes = append(changes, AdvisoryChange{Kind: ChangeCleared, Advisory: cur, At: now})
			continue
		}
		next.ActiveSince = cur.ActiveSince
		kept = append(kept, next)
		present[cur.Type] = struct{}{}
	}
	s.items = kept

	for _, a := range desired {
		if _, ok := present[a.Type]; ok {
			continue
		}
		a.ActiveSince = now
		s.items = append(s.items, a)
		present[a.Type] = struct{}{}
		changes = append(changes, AdvisoryChange{Kind: ChangeActivated, Advisory: a, At: now})
	}
	return changes
}

// Has reports whether an advisory of type t is active.
func (s *AdvisorySet) Has(t AdvisoryType) bool {
	for _, a := range s.items {
		if a.Type == t {
			return true
		}
	}
	return false
}

// Len returns the number of active advisories.
func (s *AdvisorySet) Len() int { return len(s.items) }

// List returns a copy of the active advisories.
func (s *AdvisorySet) List() []Advisory {
	out := make([]Advisory, len(s.items))
	for i, a := range s.items {
		if a.EstimatedSavings != nil {
			v := *a.EstimatedSavings
			a.EstimatedSavings = &v
		}
		out[i] = a
	}
	return out
}
