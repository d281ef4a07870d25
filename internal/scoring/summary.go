package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
)

// CategoryTotal aggregates the transactions of one category
type CategoryTotal struct {
	Category string          `json:"category" yaml:"category"`
	Outflow  decimal.Decimal `json:"outflow" yaml:"outflow"`
	Inflow   decimal.Decimal `json:"inflow" yaml:"inflow"`
	Count    int             `json:"count" yaml:"count"`
}

// TransactionSummary is a plain aggregation of a transaction set. Outflow
// figures are magnitudes.
type TransactionSummary struct {
	TransactionCount int             `json:"transaction_count" yaml:"transaction_count"`
	InflowCount      int             `json:"inflow_count" yaml:"inflow_count"`
	OutflowCount     int             `json:"outflow_count" yaml:"outflow_count"`
	TotalInflow      decimal.Decimal `json:"total_inflow" yaml:"total_inflow"`
	TotalOutflow     decimal.Decimal `json:"total_outflow" yaml:"total_outflow"`
	NetFlow          decimal.Decimal `json:"net_flow" yaml:"net_flow"`
	FirstDate        time.Time       `json:"first_date" yaml:"first_date"`
	LastDate         time.Time       `json:"last_date" yaml:"last_date"`
	PeriodDays       int             `json:"period_days" yaml:"period_days"`
	LargestOutflow   decimal.Decimal `json:"largest_outflow" yaml:"largest_outflow"`
	AverageOutflow   decimal.Decimal `json:"average_outflow" yaml:"average_outflow"`
	Categories       []CategoryTotal `json:"categories" yaml:"categories"`
}

// Summarize aggregates transactions. Categories are ordered by outflow,
// largest first, then by name.
func Summarize(txs []models.Transaction) TransactionSummary {
	s := TransactionSummary{
		TotalInflow:    decimal.Zero,
		TotalOutflow:   decimal.Zero,
		NetFlow:        decimal.Zero,
		LargestOutflow: decimal.Zero,
		AverageOutflow: decimal.Zero,
	}
	byCategory := make(map[string]*CategoryTotal)

	for i, tx := range txs {
		s.TransactionCount++

		date := models.DateOnly(tx.Date)
		if i == 0 || date.Before(s.FirstDate) {
			s.FirstDate = date
		}
		if i == 0 || date.After(s.LastDate) {
			s.LastDate = date
		}

		name := categoryOf(tx)
		ct, ok := byCategory[name]
		if !ok {
			ct = &CategoryTotal{Category: name, Outflow: decimal.Zero, Inflow: decimal.Zero}
			byCategory[name] = ct
		}
		ct.Count++

		switch {
		case tx.IsOutflow():
			mag := tx.Magnitude()
			s.OutflowCount++
			s.TotalOutflow = s.TotalOutflow.Add(mag)
			ct.Outflow = ct.Outflow.Add(mag)
			if mag.GreaterThan(s.LargestOutflow) {
				s.LargestOutflow = mag
			}
		case tx.IsInflow():
			s.InflowCount++
			s.TotalInflow = s.TotalInflow.Add(tx.Amount)
			ct.Inflow = ct.Inflow.Add(tx.Amount)
		}
	}

	s.NetFlow = s.TotalInflow.Sub(s.TotalOutflow)
	if s.OutflowCount > 0 {
		s.AverageOutflow = s.TotalOutflow.Div(decimal.NewFromInt(int64(s.OutflowCount))).Round(2)
	}
	if s.TransactionCount > 0 {
		s.PeriodDays = models.DaysBetween(s.FirstDate, s.LastDate) + 1
	}

	s.Categories = make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		s.Categories = append(s.Categories, *ct)
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if cmp := a.Outflow.Cmp(b.Outflow); cmp != 0 {
			return cmp > 0
		}
		return a.Category < b.Category
	})

	return s
}

// OutflowCategories returns the categories that carry any outflow
func (s TransactionSummary) OutflowCategories() []CategoryTotal {
	var out []CategoryTotal
	for _, ct := range s.Categories {
		if ct.Outflow.IsPositive() {
			out = append(out, ct)
		}
	}
	return out
}

func categoryOf(tx models.Transaction) string {
	if name := strings.TrimSpace(tx.Category); name != "" {
		return name
	}
	return models.UncategorizedCategory
}
