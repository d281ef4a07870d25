package scoring

import (
	"testing"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
)

func TestDescriptionSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"coffee", "coffee", 1, 1},
		{"", "", 1, 1},
		{"starbucks coffee", "starbucks coffee 123", 0.88, 0.89},
		{"rent", "uber", 0, 0},
		{"a", "b", 0, 0},
		{"night", "nacht", 0.25, 0.25},
	}

	for _, tt := range tests {
		got := DescriptionSimilarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("DescriptionSimilarity(%q, %q) = %.3f, want [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
		if back := DescriptionSimilarity(tt.b, tt.a); back != got {
			t.Errorf("similarity is not symmetric for %q/%q", tt.a, tt.b)
		}
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := map[string]string{
		"  Coffee!! ":         "coffee",
		"AMAZON.COM*Mk3 Pay":  "amazon com mk3 pay",
		"Uber   Trip\tHelp":   "uber trip help",
		"":                    "",
	}
	for in, want := range tests {
		if got := normalizeDescription(in); got != want {
			t.Errorf("normalizeDescription(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDuplicateDetector_Detect(t *testing.T) {
	detector := NewDuplicateDetector(DefaultPolicy())

	tests := []struct {
		name       string
		txs        []models.Transaction
		wantGroups []int
		wantExtra  string
	}{
		{
			name:       "identical pair",
			txs:        coffeeExample(),
			wantGroups: []int{2},
			wantExtra:  "4.50",
		},
		{
			name: "near-identical description",
			txs: []models.Transaction{
				tx("2024-02-01", "Starbucks Coffee", "-6.20", "Food"),
				tx("2024-02-02", "STARBUCKS COFFEE #123", "-6.20", "Food"),
			},
			wantGroups: []int{2},
			wantExtra:  "6.20",
		},
		{
			name: "triple charge",
			txs: []models.Transaction{
				tx("2024-02-01", "Adobe subscription", "-52.99", "Software"),
				tx("2024-02-01", "Adobe subscription", "-52.99", "Software"),
				tx("2024-02-03", "Adobe subscription", "-52.99", "Software"),
			},
			wantGroups: []int{3},
			wantExtra:  "105.98",
		},
		{
			name: "outside window",
			txs: []models.Transaction{
				tx("2024-02-01", "Coffee", "-4.50", "Food"),
				tx("2024-02-05", "Coffee", "-4.50", "Food"),
			},
			wantExtra: "0",
		},
		{
			name: "different amounts",
			txs: []models.Transaction{
				tx("2024-02-01", "Coffee", "-4.50", "Food"),
				tx("2024-02-01", "Coffee", "-4.75", "Food"),
			},
			wantExtra: "0",
		},
		{
			name: "different descriptions",
			txs: []models.Transaction{
				tx("2024-02-01", "Fuel", "-40.00", "Travel"),
				tx("2024-02-01", "Lunch", "-40.00", "Food"),
			},
			wantExtra: "0",
		},
		{
			name: "inflows never duplicate",
			txs: []models.Transaction{
				tx("2024-02-01", "Invoice payment", "250.00", "Sales"),
				tx("2024-02-01", "Invoice payment", "250.00", "Sales"),
			},
			wantExtra: "0",
		},
		{
			name: "window anchored on first occurrence",
			txs: []models.Transaction{
				tx("2024-02-01", "Parking", "-3.00", "Travel"),
				tx("2024-02-03", "Parking", "-3.00", "Travel"),
				tx("2024-02-05", "Parking", "-3.00", "Travel"),
			},
			wantGroups: []int{2},
			wantExtra:  "3.00",
		},
		{
			name: "input order within the file",
			txs: []models.Transaction{
				tx("2024-02-07", "Coffee", "-4.50", "Food"),
				tx("2024-02-01", "Lunch", "-12.00", "Food"),
				tx("2024-02-06", "Coffee", "-4.50", "Food"),
			},
			wantGroups: []int{2},
			wantExtra:  "4.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := detector.Detect(tt.txs)
			if len(groups) != len(tt.wantGroups) {
				t.Fatalf("got %d groups, want %d: %+v", len(groups), len(tt.wantGroups), groups)
			}
			for i, size := range tt.wantGroups {
				if groups[i].Occurrences() != size {
					t.Errorf("group %d has %d members, want %d", i, groups[i].Occurrences(), size)
				}
				if groups[i].Reason == "" || groups[i].GroupID == "" {
					t.Errorf("group %d lacks id or reason: %+v", i, groups[i])
				}
			}
			if got := DuplicatedAmount(groups); !got.Equal(decimal.RequireFromString(tt.wantExtra)) {
				t.Errorf("duplicated amount = %s, want %s", got, tt.wantExtra)
			}
		})
	}
}

func TestDuplicateDetector_GroupIDs(t *testing.T) {
	detector := NewDuplicateDetector(DefaultPolicy())
	groups := detector.Detect([]models.Transaction{
		tx("2024-03-01", "Coffee", "-4.50", "Food"),
		tx("2024-03-01", "Coffee", "-4.50", "Food"),
		tx("2024-03-20", "Taxi", "-18.00", "Travel"),
		tx("2024-03-21", "Taxi", "-18.00", "Travel"),
	})
	if len(groups) != 2 || groups[0].GroupID != "DUP_001" || groups[1].GroupID != "DUP_002" {
		t.Errorf("unexpected groups %+v", groups)
	}
	if groups[1].Description != "Taxi" || groups[1].MinSimilarity != 1 {
		t.Errorf("unexpected second group %+v", groups[1])
	}
}
