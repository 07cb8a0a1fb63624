package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReadingRecord is an archived sensor sample.
type ReadingRecord struct {
	ID         int64
	TakenAt    time.Time
	VoltageRMS float64
	CurrentRMS float64
	PowerKW    float64
	Source     string
}

// DailyUsage is the closing balance of one accounting day.
type DailyUsage struct {
	Day       time.Time
	EnergyKWh decimal.Decimal
	Cost      decimal.Decimal
	Samples   int
	ClosedAt  time.Time
}

// AdvisoryEvent captures an advisory activation or clearing for auditing.
type AdvisoryEvent struct {
	ID        int64
	Type      string
	Kind      string
	Severity  string
	Message   string
	PowerKW   float64
	CreatedAt time.Time
}
