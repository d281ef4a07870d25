package scoring

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
)

func tx(date, description, amount, category string) models.Transaction {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return models.NewTransaction(d, description, decimal.RequireFromString(amount), category, models.FormatGeneric)
}

func coffeeExample() []models.Transaction {
	return []models.Transaction{
		tx("2024-01-05", "Coffee", "-4.50", "Food"),
		tx("2024-01-06", "Paycheck", "2000.00", "Income"),
		tx("2024-01-07", "Coffee", "-4.50", "Food"),
	}
}

// weeklyBook has five equal outflows in five categories, one per week, each
// paired with an inflow of inflowEach on the same day.
func weeklyBook(inflowEach string) []models.Transaction {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	outflows := []struct{ desc, category string }{
		{"Office rent", "Rent"},
		{"Payroll run", "Payroll"},
		{"Cloud hosting", "Software"},
		{"Flight to Berlin", "Travel"},
		{"Electricity bill", "Utilities"},
	}
	var txs []models.Transaction
	for i, o := range outflows {
		day := start.AddDate(0, 0, 7*i)
		txs = append(txs,
			models.NewTransaction(day, o.desc, decimal.NewFromInt(-100), o.category, models.FormatGeneric),
			models.NewTransaction(day, "Customer payment", decimal.RequireFromString(inflowEach), "Sales", models.FormatGeneric),
		)
	}
	return txs
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultPolicy())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestEngine_CoffeeExample(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Score(coffeeExample())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if !result.Summary.TotalOutflow.Equal(decimal.RequireFromString("9.00")) {
		t.Errorf("expected total outflow 9.00, got %s", result.Summary.TotalOutflow)
	}
	if !result.Summary.TotalInflow.Equal(decimal.RequireFromString("2000.00")) {
		t.Errorf("expected total inflow 2000.00, got %s", result.Summary.TotalInflow)
	}

	if len(result.Duplicates) != 1 {
		t.Fatalf("expected one duplicate group, got %d", len(result.Duplicates))
	}
	group := result.Duplicates[0]
	if group.Occurrences() != 2 || group.Description != "Coffee" {
		t.Errorf("unexpected duplicate group %+v", group)
	}
	if !group.ExtraAmount.Equal(decimal.RequireFromString("4.50")) {
		t.Errorf("expected extra amount 4.50, got %s", group.ExtraAmount)
	}

	expected := map[string]float64{
		MetricConsistency:   100,
		MetricConcentration: 0,
		MetricFrequency:     100,
		MetricWaste:         0,
		MetricNetFlow:       100,
	}
	for name, want := range expected {
		m, ok := result.Metric(name)
		if !ok {
			t.Fatalf("metric %s missing", name)
		}
		if m.Score != want {
			t.Errorf("%s = %.2f, want %.2f (%s)", name, m.Score, want, m.Detail)
		}
	}

	if result.FinalScore != 60 {
		t.Errorf("expected final score 60, got %d", result.FinalScore)
	}
	if result.TierInfo.Tier != TierYellow || result.TierInfo.Label != "Fair" || result.TierInfo.Color != "#FFC107" {
		t.Errorf("unexpected tier %+v", result.TierInfo)
	}
	if result.TierInfo.GreenRewardEligible {
		t.Error("yellow tier must not be green reward eligible")
	}
	if result.PolicyVersion != DefaultPolicyVersion {
		t.Errorf("expected policy version %s, got %s", DefaultPolicyVersion, result.PolicyVersion)
	}
}

func TestEngine_GreenReward(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		inflowEach string
		wantScore  int
		wantTier   Tier
		wantReward bool
	}{
		{
			name:       "green with healthy net flow",
			inflowEach: "120",
			wantScore:  100,
			wantTier:   TierGreen,
			wantReward: true,
		},
		{
			name:       "green with weak net flow",
			inflowEach: "50",
			wantScore:  86,
			wantTier:   TierGreen,
			wantReward: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Score(weeklyBook(tt.inflowEach))
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if result.FinalScore != tt.wantScore {
				t.Errorf("final score = %d, want %d (%+v)", result.FinalScore, tt.wantScore, result.Breakdown)
			}
			if result.TierInfo.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", result.TierInfo.Tier, tt.wantTier)
			}
			if result.TierInfo.GreenRewardEligible != tt.wantReward {
				t.Errorf("green reward = %v, want %v", result.TierInfo.GreenRewardEligible, tt.wantReward)
			}
			if len(result.Duplicates) != 0 {
				t.Errorf("expected no duplicates, got %+v", result.Duplicates)
			}
		})
	}
}

func TestEngine_ScoreRangeAndBreakdown(t *testing.T) {
	engine := newTestEngine(t)

	sets := map[string][]models.Transaction{
		"single outflow": {tx("2024-01-01", "Rent", "-1500", "Rent")},
		"single inflow":  {tx("2024-01-01", "Invoice", "1500", "Sales")},
		"zero amount":    {tx("2024-01-01", "Adjustment", "0", "")},
		"all outflows": {
			tx("2024-01-01", "Rent", "-1500", "Rent"),
			tx("2024-01-09", "Fuel", "-60", "Travel"),
			tx("2024-02-20", "Laptop", "-2400", "Equipment"),
		},
		"all inflows": {
			tx("2024-01-01", "Invoice 1", "900", "Sales"),
			tx("2024-01-30", "Invoice 2", "1200", "Sales"),
		},
		"coffee":        coffeeExample(),
		"weekly strong": weeklyBook("120"),
		"weekly weak":   weeklyBook("10"),
	}

	for name, txs := range sets {
		t.Run(name, func(t *testing.T) {
			result, err := engine.Score(txs)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if result.FinalScore < 0 || result.FinalScore > 100 {
				t.Errorf("final score %d out of range", result.FinalScore)
			}
			if len(result.Breakdown) != len(MetricNames) {
				t.Fatalf("expected %d metrics, got %d", len(MetricNames), len(result.Breakdown))
			}
			weights := 0.0
			for i, m := range result.Breakdown {
				if m.Name != MetricNames[i] {
					t.Errorf("breakdown[%d] = %s, want %s", i, m.Name, MetricNames[i])
				}
				if m.Score < 0 || m.Score > 100 {
					t.Errorf("%s score %.2f out of range", m.Name, m.Score)
				}
				weights += m.Weight
			}
			if math.Abs(weights-1) > 1e-9 {
				t.Errorf("weights sum to %f", weights)
			}
			if diff := math.Abs(result.ContributionTotal() - float64(result.FinalScore)); diff > 0.5 {
				t.Errorf("breakdown sums to %.2f, final %d", result.ContributionTotal(), result.FinalScore)
			}
		})
	}
}

func TestEngine_SingleOutflow(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Score([]models.Transaction{tx("2024-01-01", "Rent", "-1500", "Rent")})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	// consistency 100, concentration 0, frequency 100, waste 100, net flow 0
	if result.FinalScore != 55 {
		t.Errorf("expected 55, got %d", result.FinalScore)
	}
	if result.TierInfo.Tier != TierRed || result.TierInfo.Label != "Needs Attention" {
		t.Errorf("unexpected tier %+v", result.TierInfo)
	}
}

func TestEngine_ZeroFlowNetScore(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Score([]models.Transaction{tx("2024-01-01", "Adjustment", "0", "")})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	m, _ := result.Metric(MetricNetFlow)
	if m.Score != 50 {
		t.Errorf("expected neutral net flow 50, got %.2f", m.Score)
	}
}

func TestEngine_Idempotent(t *testing.T) {
	engine := newTestEngine(t)
	txs := weeklyBook("75")

	first, err := engine.Score(txs)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	second, err := engine.Score(txs)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("scoring the same input twice gave different results")
	}

	reversed := make([]models.Transaction, len(txs))
	for i := range txs {
		reversed[len(txs)-1-i] = txs[i]
	}
	third, err := engine.Score(reversed)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if third.FinalScore != first.FinalScore {
		t.Errorf("input order changed the score: %d vs %d", third.FinalScore, first.FinalScore)
	}
}

func TestEngine_Errors(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Score(nil)
	if !errors.IsInsufficientData(err) {
		t.Errorf("expected insufficient data error, got %v", err)
	}
	if ee, ok := errors.AsEngineError(err); !ok || ee.GetExitCode() != 5 {
		t.Errorf("expected exit code 5, got %v", err)
	}

	_, err = engine.Score([]models.Transaction{{Amount: decimal.NewFromInt(-5), Category: "Food"}})
	ee, ok := errors.AsEngineError(err)
	if !ok || ee.Category != errors.CategoryValidation || ee.Code != errors.CodeInvalidDate {
		t.Errorf("expected invalid date validation error, got %v", err)
	}

	bad := DefaultPolicy()
	bad.Weights.NetFlow = 0.5
	if _, err := NewEngine(bad); err == nil {
		t.Error("expected invalid policy to be rejected")
	}
}

func TestEngine_PolicyIsCopied(t *testing.T) {
	policy := DefaultPolicy()
	engine, err := NewEngine(policy)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	policy.Tiers[2].Label = "Changed"

	result, err := engine.Score(weeklyBook("120"))
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if result.TierInfo.Label != "Excellent" {
		t.Errorf("engine policy was mutated through the caller: %s", result.TierInfo.Label)
	}
}
