package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"energy-meter/internal/meter"
	"energy-meter/internal/metrics"
	"energy-meter/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server *Server
}

func newTestServer(t *testing.T, at time.Time) *testEnv {
	t.Helper()
	opts := meter.DefaultOptions()
	opts.Location = time.UTC
	opts.Clock = func() time.Time { return at }
	m := metrics.New()
	svc := service.New(meter.NewEngine(opts), service.Options{Metrics: m}, zerolog.Nop())
	srv := New(Options{AllowedOrigins: []string{"*"}, ExposeMetrics: true}, svc, m, zerolog.Nop())
	return &testEnv{server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json body %q: %v", rec.Body.String(), err)
	}
	return out
}

func closeTo(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPostSensorDataSuccess(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":4,"power":3.0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "success" || body["message"] != "Data received" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["timestamp"] != "2024-06-12T07:00:00.000Z" {
		t.Fatalf("unexpected timestamp %v", body["timestamp"])
	}
}

func TestPostSensorDataMissingField(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":4}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "error" || body["message"] != "Missing required fields" {
		t.Fatalf("unexpected body %v", body)
	}
	received, ok := body["received"].(map[string]any)
	if !ok || received["voltage_rms"] != 230.0 {
		t.Fatalf("received should echo the payload: %v", body["received"])
	}
}

func TestPostSensorDataEmptyBody(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/api/sensor-data", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeBody(t, rec)["message"] != "Missing required fields" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestPostSensorDataRejectsNegativeAndMalformed(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":4,"power":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative power status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["field"] != "power" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "Invalid JSON payload" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPostSensorDataAcceptsZeroReading(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))

	rec := env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":0,"current_rms":0,"power":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("zero reading should be accepted, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardData(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 7, 0, 0, 0, time.UTC))
	env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":13,"power":3.0}`)

	rec := env.do(t, http.MethodGet, "/api/dashboard-data", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)

	if body["currentUsage"] != 3.0 || body["currentVoltage"] != 230.0 || body["currentCurrent"] != 13.0 {
		t.Fatalf("unexpected current values: %v", body)
	}
	if !closeTo(body["todayUsage"].(float64), 3.0/3600) {
		t.Fatalf("todayUsage = %v", body["todayUsage"])
	}
	if !closeTo(body["spentSoFar"].(float64), 3.0/3600*6) {
		t.Fatalf("spentSoFar = %v", body["spentSoFar"])
	}
	if body["offPeakRate"] != 3.5 || body["currentTariffRate"] != 7.0 || body["currentTariffBand"] != "peak" {
		t.Fatalf("unexpected tariff fields: %v %v %v", body["offPeakRate"], body["currentTariffRate"], body["currentTariffBand"])
	}
	if body["projectedMonthlyCost"] != "0" {
		t.Fatalf("projectedMonthlyCost should be a zero-decimal string, got %#v", body["projectedMonthlyCost"])
	}
	if body["monthlyCostChange"] != 12.0 {
		t.Fatalf("monthlyCostChange = %v", body["monthlyCostChange"])
	}

	insights := body["aiInsights"].([]any)
	if len(insights) != 2 {
		t.Fatalf("expected laundry and peak insights, got %v", insights)
	}
	first := insights[0].(map[string]any)
	if first["type"] != "optimal-laundry-time" || first["estimatedSavings"] != 45.0 {
		t.Fatalf("unexpected first insight %v", first)
	}
	if _, ok := insights[1].(map[string]any)["estimatedSavings"]; ok {
		t.Fatal("peak alert must not carry a savings figure")
	}

	if tips := body["quickTips"].([]any); len(tips) != 5 {
		t.Fatalf("expected 5 tips, got %d", len(tips))
	}
	hourly := body["hourlyUsageData"].([]any)
	if len(hourly) != 12 {
		t.Fatalf("expected 12 hourly buckets, got %d", len(hourly))
	}
	bucket := hourly[3].(map[string]any)
	if bucket["time"] != "7:00" || !closeTo(bucket["usage"].(float64), 3.0/3600) {
		t.Fatalf("unexpected 6-8h bucket %v", bucket)
	}
}

func TestDashboardDataBeforeAnyReading(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/dashboard-data", ""))
	if body["currentUsage"] != 0.0 || body["projectedMonthlyCost"] != "0" {
		t.Fatalf("unexpected initial dashboard: %v", body)
	}
	if insights, ok := body["aiInsights"].([]any); !ok || len(insights) != 0 {
		t.Fatalf("aiInsights should be an empty array, got %#v", body["aiInsights"])
	}
}

func TestStaticPages(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))

	analytics := decodeBody(t, env.do(t, http.MethodGet, "/api/analytics-data", ""))
	if summary := analytics["summary"].(map[string]any); summary["peakDemand"] != 7.5 {
		t.Fatalf("unexpected analytics summary %v", summary)
	}
	billing := decodeBody(t, env.do(t, http.MethodGet, "/api/billing-data", ""))
	if bill := billing["currentBill"].(map[string]any); bill["totalAmount"] != 1850.75 {
		t.Fatalf("unexpected bill %v", bill)
	}
	if past := billing["pastBills"].([]any); len(past) != 3 {
		t.Fatalf("expected 3 past bills, got %d", len(past))
	}
}

func TestHistoryLimit(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))
	for i := 0; i < 5; i++ {
		payload := `{"voltage_rms":230,"current_rms":1,"power":0.` + string(rune('1'+i)) + `}`
		if rec := env.do(t, http.MethodPost, "/api/sensor-data", payload); rec.Code != http.StatusOK {
			t.Fatalf("post %d failed: %d", i, rec.Code)
		}
	}

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/history?limit=2", ""))
	if body["capacity"] != 100.0 || body["count"] != 2.0 {
		t.Fatalf("unexpected history envelope %v", body)
	}
	readings := body["readings"].([]any)
	last := readings[1].(map[string]any)
	if last["power"] != 0.5 {
		t.Fatalf("history should end with the latest reading, got %v", last)
	}

	if rec := env.do(t, http.MethodGet, "/api/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d", rec.Code)
	}
}

func TestAdvisoriesEndpoint(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 19, 0, 0, 0, time.UTC))
	env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":4,"power":1}`)

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/advisories", ""))
	list := body["advisories"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != "optimal-laundry-time" {
		t.Fatalf("unexpected advisories %v", list)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodOptions, "/api/sensor-data", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code >= 300 {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))
	env.do(t, http.MethodPost, "/api/sensor-data", `{"voltage_rms":230,"current_rms":4,"power":0.9}`)

	health := decodeBody(t, env.do(t, http.MethodGet, "/healthz", ""))
	if health["status"] != "ok" || health["samples_total"] != 1.0 {
		t.Fatalf("unexpected health %v", health)
	}

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{"meterd_readings_accepted_total 1", "meterd_power_kw 0.9", `route="/api/sensor-data"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestServer(t, time.Date(2024, time.June, 12, 12, 0, 0, 0, time.UTC))
	env.server.opts.Host = "127.0.0.1"
	env.server.opts.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
