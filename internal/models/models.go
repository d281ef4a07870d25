package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceFormat identifies the export layout a transaction was read from
type SourceFormat string

const (
	FormatQuickBooks SourceFormat = "quickbooks"
	FormatWave       SourceFormat = "wave"
	FormatRevolut    SourceFormat = "revolut"
	FormatXero       SourceFormat = "xero"
	FormatGeneric    SourceFormat = "generic"
)

// AllSourceFormats lists the layouts in their fixed tie-break order.
var AllSourceFormats = []SourceFormat{
	FormatQuickBooks,
	FormatWave,
	FormatRevolut,
	FormatXero,
	FormatGeneric,
}

// String returns the string representation of SourceFormat
func (f SourceFormat) String() string {
	return string(f)
}

// IsValid checks if the source format is one of the known layouts
func (f SourceFormat) IsValid() bool {
	for _, known := range AllSourceFormats {
		if f == known {
			return true
		}
	}
	return false
}

// ParseSourceFormat parses a layout name case-insensitively
func ParseSourceFormat(s string) (SourceFormat, error) {
	f := SourceFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid source format: %s", s)
	}
	return f, nil
}

// UncategorizedCategory is used when an export row carries no category
const UncategorizedCategory = "Uncategorized"

// DateLayout is the canonical serialization layout for transaction dates
const DateLayout = "2006-01-02"

// Transaction is the canonical record every export is normalized into.
// Negative amounts are outflows, positive amounts are inflows.
type Transaction struct {
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
	SourceFormat SourceFormat    `json:"source_format"`
}

// NewTransaction creates a Transaction, truncating the date to a UTC
// calendar day and defaulting an empty category.
func NewTransaction(date time.Time, description string, amount decimal.Decimal, category string, source SourceFormat) Transaction {
	category = strings.TrimSpace(category)
	if category == "" {
		category = UncategorizedCategory
	}
	return Transaction{
		Date:         DateOnly(date),
		Description:  strings.TrimSpace(description),
		Amount:       amount,
		Category:     category,
		SourceFormat: source,
	}
}

// Validate performs basic validation on the Transaction
func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("transaction category cannot be empty")
	}
	return nil
}

// IsOutflow reports whether money left the business
func (t Transaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// IsInflow reports whether money came in
func (t Transaction) IsInflow() bool {
	return t.Amount.IsPositive()
}

// Magnitude returns the absolute amount
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// String returns a string representation of the Transaction
func (t Transaction) String() string {
	return fmt.Sprintf("Transaction{Date: %s, Amount: %s, Category: %s, Description: %q}",
		t.Date.Format(DateLayout), t.Amount.StringFixed(2), t.Category, t.Description)
}

// MarshalJSON writes the amount as a string and the date as YYYY-MM-DD
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		Alias
	}{
		Date:   t.Date.Format(DateLayout),
		Amount: t.Amount.String(),
		Alias:  Alias(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Equals compares two transactions field by field
func (t Transaction) Equals(other Transaction) bool {
	return t.Date.Equal(other.Date) &&
		t.Description == other.Description &&
		t.Amount.Equal(other.Amount) &&
		t.Category == other.Category &&
		t.SourceFormat == other.SourceFormat
}

// DateOnly drops the time of day and location, keeping the wall-clock date
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var currencyReplacer = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", "₹", "",
	",", "", " ", "", " ", "",
)

// ParseAmount parses a monetary value from an export cell. Currency
// symbols, thousands separators and whitespace are stripped; a value in
// parentheses is negative.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = currencyReplacer.Replace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("amount string has no digits")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	if negative {
		d = d.Abs().Neg()
	}
	return d, nil
}

// ParseOptionalAmount returns zero for an empty cell
func ParseOptionalAmount(s string) (decimal.Decimal, bool, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, false, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

// FlexibleDateLayouts are tried, in order, for exports without a fixed
// date layout.
var FlexibleDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

// ParseDate parses a calendar date using the given layouts in order
func ParseDate(s string, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}
	if len(layouts) == 0 {
		layouts = FlexibleDateLayouts
	}

	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return DateOnly(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DaysBetween returns the absolute number of whole days between two dates
func DaysBetween(a, b time.Time) int {
	diff := DateOnly(a).Sub(DateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}
