package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"energy-meter/internal/demo"
	"energy-meter/internal/meter"
	"energy-meter/internal/source"
)

// monthlyCostChange is the fixed month-over-month percentage shown on the
// dashboard card; there is no previous month to compare against.
const monthlyCostChange = 12

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type hourlyUsage struct {
	Time  string  `json:"time"`
	Usage float64 `json:"usage"`
}

type dashboardResponse struct {
	CurrentUsage         float64          `json:"currentUsage"`
	OffPeakRate          float64          `json:"offPeakRate"`
	TodayUsage           float64          `json:"todayUsage"`
	TodayProjected       float64          `json:"todayProjected"`
	SpentSoFar           float64          `json:"spentSoFar"`
	CurrentTariffRate    float64          `json:"currentTariffRate"`
	CurrentTariffBand    string           `json:"currentTariffBand"`
	ProjectedMonthlyCost string           `json:"projectedMonthlyCost"`
	MonthlyCostChange    float64          `json:"monthlyCostChange"`
	HourlyUsageData      []hourlyUsage    `json:"hourlyUsageData"`
	AIInsights           []meter.Advisory `json:"aiInsights"`
	QuickTips            []demo.QuickTip  `json:"quickTips"`
	CurrentVoltage       float64          `json:"currentVoltage"`
	CurrentCurrent       float64          `json:"currentCurrent"`
}

func (s *Server) postSensorData(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Unable to read request body", "error": err.Error()})
		return
	}

	raw, err := source.Decode(body)
	switch {
	case errors.Is(err, source.ErrEmptyPayload):
		raw = map[string]any{}
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid JSON payload", "error": err.Error()})
		return
	}

	res, err := s.backend.Ingest(c.Request.Context(), raw)
	if err != nil {
		var invalid *meter.InvalidFieldError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":   "error",
				"message":  "Invalid field value",
				"field":    invalid.Field,
				"received": raw,
			})
		case errors.Is(err, meter.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":   "error",
				"message":  "Missing required fields",
				"received": raw,
			})
		default:
			s.logger.Error().Err(err).Msg("ingest failed")
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Error processing data", "error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Data received",
		"timestamp": res.Reading.Timestamp.UTC().Format(isoMillis),
	})
}

func (s *Server) getDashboardData(c *gin.Context) {
	snap := s.backend.Snapshot()
	sched := s.backend.Schedule()

	advisories := snap.Advisories
	if advisories == nil {
		advisories = []meter.Advisory{}
	}

	c.JSON(http.StatusOK, dashboardResponse{
		CurrentUsage:         snap.CurrentPower,
		OffPeakRate:          sched.OffPeakRate.InexactFloat64(),
		TodayUsage:           snap.EnergyToday,
		TodayProjected:       snap.TodayProjected,
		SpentSoFar:           snap.SpentSoFar.InexactFloat64(),
		CurrentTariffRate:    sched.RateAt(snap.At).InexactFloat64(),
		CurrentTariffBand:    string(sched.Band(snap.At)),
		ProjectedMonthlyCost: snap.ProjectedMonthlyCost.StringFixed(0),
		MonthlyCostChange:    monthlyCostChange,
		HourlyUsageData:      hourlyBuckets(snap.HourlyEnergy),
		AIInsights:           advisories,
		QuickTips:            demo.QuickTips(),
		CurrentVoltage:       snap.CurrentVoltage,
		CurrentCurrent:       snap.CurrentCurrent,
	})
}

// hourlyBuckets folds today's per-hour energy into the twelve two-hour bars
// of the usage chart, labelled by the bucket's odd hour.
func hourlyBuckets(hours [24]float64) []hourlyUsage {
	out := make([]hourlyUsage, 0, 12)
	for i := 0; i < 24; i += 2 {
		out = append(out, hourlyUsage{
			Time:  fmt.Sprintf("%d:00", i+1),
			Usage: hours[i] + hours[i+1],
		})
	}
	return out
}

func (s *Server) getAnalyticsData(c *gin.Context) {
	c.JSON(http.StatusOK, demo.AnalyticsData())
}

func (s *Server) getBillingData(c *gin.Context) {
	c.JSON(http.StatusOK, demo.BillingData())
}

func (s *Server) getHistory(c *gin.Context) {
	snap := s.backend.Snapshot()
	readings := snap.History
	if readings == nil {
		readings = []meter.Reading{}
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "limit must be a positive integer"})
			return
		}
		if limit < len(readings) {
			readings = readings[len(readings)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"capacity": snap.HistoryCapacity,
		"count":    len(readings),
		"readings": readings,
	})
}

func (s *Server) getAdvisories(c *gin.Context) {
	advisories := s.backend.Snapshot().Advisories
	if advisories == nil {
		advisories = []meter.Advisory{}
	}
	c.JSON(http.StatusOK, gin.H{"advisories": advisories})
}

func (s *Server) getHealth(c *gin.Context) {
	snap := s.backend.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"time":          snap.At.Format(time.RFC3339),
		"samples_total": snap.SamplesTotal,
	})
}
