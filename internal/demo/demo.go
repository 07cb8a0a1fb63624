// Package demo holds the fixed analytics, billing and tips payloads shown by
// the dashboard pages that have no live data behind them.
package demo

// QuickTip is a static energy-saving hint.
type QuickTip struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// QuickTips lists the dashboard tips in display order.
func QuickTips() []QuickTip {
	return []QuickTip{
		{ID: 1, Title: "Optimize AC Usage", Message: "Set your AC to 26°C for optimal savings. Each degree lower can increase consumption by 5%."},
		{ID: 2, Title: "Unplug Idle Devices", Message: "Phantom load from chargers and idle electronics can add up. Unplug them when not in use."},
		{ID: 3, Title: "LED Lighting", Message: "Switch to LED bulbs. They use up to 80% less energy than incandescent bulbs and last longer."},
		{ID: 4, Title: "Peak Hour Awareness", Message: "Reduce heavy appliance use during peak hours (6-10 AM, 6-10 PM) to avoid higher tariffs."},
		{ID: 5, Title: "Regular Maintenance", Message: "Clean refrigerator coils and AC filters regularly to improve efficiency and reduce energy consumption."},
	}
}

// Analytics is the analytics page payload.
type Analytics struct {
	Summary                AnalyticsSummary `json:"summary"`
	DailyUsageData         []DailyUsage     `json:"dailyUsageData"`
	WeeklyTrendData        []WeeklyUsage    `json:"weeklyTrendData"`
	MonthlyTrendData       []MonthlyUsage   `json:"monthlyTrendData"`
	DeviceUsageData        []Share          `json:"deviceUsageData"`
	TariffDistributionData []Share          `json:"tariffDistributionData"`
}

type AnalyticsSummary struct {
	TotalConsumption float64 `json:"totalConsumption"`
	AverageDaily     float64 `json:"averageDaily"`
	PeakDemand       float64 `json:"peakDemand"`
	CostSavings      float64 `json:"costSavings"`
}

type DailyUsage struct {
	Date  string  `json:"date"`
	Usage float64 `json:"usage"`
}

type WeeklyUsage struct {
	Week  string  `json:"week"`
	Usage float64 `json:"usage"`
}

type MonthlyUsage struct {
	Month string  `json:"month"`
	Usage float64 `json:"usage"`
}

// Share is one slice of a pie chart.
type Share struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// AnalyticsData returns the fixed analytics payload.
func AnalyticsData() Analytics {
	return Analytics{
		Summary: AnalyticsSummary{TotalConsumption: 480, AverageDaily: 16, PeakDemand: 7.5, CostSavings: 85},
		DailyUsageData: []DailyUsage{
			{Date: "2024-06-01", Usage: 15.2},
			{Date: "2024-06-02", Usage: 14.8},
			{Date: "2024-06-03", Usage: 16.1},
			{Date: "2024-06-04", Usage: 13.5},
			{Date: "2024-06-05", Usage: 15.9},
			{Date: "2024-06-06", Usage: 17.0},
			{Date: "2024-06-07", Usage: 14.5},
		},
		WeeklyTrendData: []WeeklyUsage{
			{Week: "Week 1", Usage: 105},
			{Week: "Week 2", Usage: 98},
			{Week: "Week 3", Usage: 112},
			{Week: "Week 4", Usage: 100},
		},
		MonthlyTrendData: []MonthlyUsage{
			{Month: "Jan", Usage: 450},
			{Month: "Feb", Usage: 420},
			{Month: "Mar", Usage: 480},
			{Month: "Apr", Usage: 460},
			{Month: "May", Usage: 490},
			{Month: "Jun", Usage: 470},
		},
		DeviceUsageData: []Share{
			{Name: "AC", Value: 45},
			{Name: "Refrigerator", Value: 20},
			{Name: "Geyser", Value: 15},
			{Name: "Lighting", Value: 10},
			{Name: "Others", Value: 10},
		},
		TariffDistributionData: []Share{
			{Name: "Peak (₹7/kWh)", Value: 30},
			{Name: "Normal (₹5/kWh)", Value: 50},
			{Name: "Off-Peak (₹3.5/kWh)", Value: 20},
		},
	}
}

// Billing is the billing page payload.
type Billing struct {
	CurrentBill    CurrentBill     `json:"currentBill"`
	PastBills      []PastBill      `json:"pastBills"`
	PaymentOptions []PaymentOption `json:"paymentOptions"`
	Alerts         []string        `json:"alerts"`
}

type CurrentBill struct {
	Period      string     `json:"period"`
	DueDate     string     `json:"dueDate"`
	TotalAmount float64    `json:"totalAmount"`
	Consumption float64    `json:"consumption"`
	Status      string     `json:"status"`
	Details     []BillLine `json:"details"`
}

type BillLine struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type PastBill struct {
	ID          string  `json:"id"`
	Period      string  `json:"period"`
	TotalAmount float64 `json:"totalAmount"`
	Status      string  `json:"status"`
	DueDate     string  `json:"dueDate"`
}

type PaymentOption struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// BillingData returns the fixed billing payload.
func BillingData() Billing {
	return Billing{
		CurrentBill: CurrentBill{
			Period:      "June 1, 2024 - June 30, 2024",
			DueDate:     "July 15, 2024",
			TotalAmount: 1850.75,
			Consumption: 308,
			Status:      "Unpaid",
			Details: []BillLine{
				{Description: "Energy Consumption (308 kWh)", Amount: 1694.00},
				{Description: "Fixed Charges", Amount: 100.00},
				{Description: "Taxes & Duties", Amount: 56.75},
			},
		},
		PastBills: []PastBill{
			{ID: "bill-2024-05", Period: "May 1, 2024 - May 31, 2024", TotalAmount: 1720.50, Status: "Paid", DueDate: "June 15, 2024"},
			{ID: "bill-2024-04", Period: "April 1, 2024 - April 30, 2024", TotalAmount: 1680.00, Status: "Paid", DueDate: "May 15, 2024"},
			{ID: "bill-2024-03", Period: "March 1, 2024 - March 31, 2024", TotalAmount: 1950.25, Status: "Paid", DueDate: "April 15, 2024"},
		},
		PaymentOptions: []PaymentOption{
			{Name: "Credit/Debit Card", Icon: "💳"},
			{Name: "Net Banking", Icon: "🏦"},
			{Name: "UPI", Icon: "📱"},
		},
		Alerts: []string{
			"Your bill for June is due on July 15, 2024. Total amount: ₹1850.75.",
			"Enroll in Auto-Pay for hassle-free payments and a chance to win a smart speaker!",
		},
	}
}
