// Package samples generates deterministic, platform-shaped CSV exports for
// demos and tests. The same configuration always produces the same bytes,
// and every generated row normalizes back to the transaction returned with it.
//
// Example usage:
//
//	sample, err := samples.Generate(&samples.Config{Format: models.FormatXero, Count: 50, Seed: 7, ...})
//	err = sample.WriteCSV(os.Stdout)
package samples

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/pkg/errors"
)

// Config controls sample generation
type Config struct {
	Format    models.SourceFormat `json:"format" yaml:"format"`
	Count     int                 `json:"count" yaml:"count"`
	StartDate time.Time           `json:"start_date" yaml:"start_date"`
	SpanDays  int                 `json:"span_days" yaml:"span_days"`
	Seed      int64               `json:"seed" yaml:"seed"`
	// InflowRate is the share of generated rows that are money in.
	InflowRate float64 `json:"inflow_rate" yaml:"inflow_rate"`
	// DuplicateRate is the chance an outflow is charged twice.
	DuplicateRate float64 `json:"duplicate_rate" yaml:"duplicate_rate"`
}

// DefaultConfig returns a configuration producing a quarter of generic activity
func DefaultConfig() *Config {
	return &Config{
		Format:        models.FormatGeneric,
		Count:         60,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SpanDays:      90,
		Seed:          1,
		InflowRate:    0.25,
		DuplicateRate: 0.05,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if !c.Format.IsValid() {
		return errors.UnknownFormatNameError(string(c.Format))
	}
	if c.Count < 1 || c.Count > 100000 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sample.count", c.Count, nil).
			WithSuggestion("count must be between 1 and 100000")
	}
	if c.SpanDays < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sample.span_days", c.SpanDays, nil)
	}
	if c.StartDate.IsZero() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "sample.start_date", nil, nil)
	}
	if c.InflowRate < 0 || c.InflowRate >= 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sample.inflow_rate", c.InflowRate, nil)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate >= 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sample.duplicate_rate", c.DuplicateRate, nil)
	}
	return nil
}

// counterparty is a merchant or payer with a typical amount range in cents
type counterparty struct {
	name        string
	description string
	category    string
	minCents    int64
	maxCents    int64
}

var outflowParties = []counterparty{
	{"Blue Bottle", "Coffee beans", "Meals", 800, 6000},
	{"Landlord LLC", "Office rent", "Rent", 90000, 150000},
	{"AWS", "Cloud hosting", "Software", 5000, 40000},
	{"Officeworks", "Printer paper", "Office Expenses", 1000, 12000},
	{"Telstra", "Mobile plan", "Telephone", 4000, 9000},
	{"Qantas", "Flights", "Travel", 20000, 90000},
	{"Uber", "Rides", "Travel", 1200, 6000},
}

var inflowParties = []counterparty{
	{"Acme Corp", "Client payment", "Sales", 80000, 400000},
	{"Stripe", "Stripe payout", "Sales", 20000, 250000},
}

// entry is one generated movement before it is laid out for a platform
type entry struct {
	at     time.Time
	party  counterparty
	amount decimal.Decimal
}

// Sample is a generated export: its header, raw rows and the canonical
// transactions the rows normalize to
type Sample struct {
	Format       models.SourceFormat
	Header       []string
	Rows         [][]string
	Transactions []models.Transaction
}

// Generate builds a sample export for the configuration
func Generate(config *Config) (*Sample, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	layout, _ := normalizer.LayoutFor(config.Format)
	sample := &Sample{Format: config.Format, Header: layout.Header}

	entries := generateEntries(config)
	balance := decimal.NewFromInt(1000)
	for i, e := range entries {
		balance = balance.Add(e.amount)
		row, tx := layoutRow(config.Format, i, e, balance)
		sample.Rows = append(sample.Rows, row)
		sample.Transactions = append(sample.Transactions, tx)
	}
	return sample, nil
}

func generateEntries(config *Config) []entry {
	rng := rand.New(rand.NewSource(config.Seed))
	entries := make([]entry, 0, config.Count)

	for i := 0; len(entries) < config.Count; i++ {
		day := i * config.SpanDays / config.Count
		at := config.StartDate.AddDate(0, 0, day).
			Add(time.Duration(9+rng.Intn(8))*time.Hour + time.Duration(rng.Intn(60))*time.Minute)

		inflow := rng.Float64() < config.InflowRate
		parties := outflowParties
		if inflow {
			parties = inflowParties
		}
		party := parties[rng.Intn(len(parties))]
		cents := party.minCents + rng.Int63n(party.maxCents-party.minCents+1)
		amount := decimal.New(cents, -2)
		if !inflow {
			amount = amount.Neg()
		}

		entries = append(entries, entry{at: at, party: party, amount: amount})

		if !inflow && len(entries) < config.Count && rng.Float64() < config.DuplicateRate {
			again := at.AddDate(0, 0, rng.Intn(2))
			entries = append(entries, entry{at: again, party: party, amount: amount})
		}
	}
	return entries
}

// layoutRow renders an entry in the column order of the platform header and
// returns the transaction the normalizer reads back from it
func layoutRow(format models.SourceFormat, i int, e entry, balance decimal.Decimal) ([]string, models.Transaction) {
	magnitude := e.amount.Abs().StringFixed(2)
	signed := e.amount.StringFixed(2)
	outflow := e.amount.IsNegative()
	category := e.party.category
	description := e.party.description

	var row []string
	switch format {
	case models.FormatQuickBooks:
		txType := "Deposit"
		if outflow {
			txType = "Expense"
		}
		row = []string{
			e.at.Format("01/02/2006"), txType, fmt.Sprintf("%d", 1000+i),
			e.party.name, description, category, magnitude,
		}

	case models.FormatWave:
		debit, credit := "", magnitude
		if outflow {
			debit, credit = magnitude, ""
		}
		row = []string{
			fmt.Sprintf("W%05d", i+1), e.at.Format("2006-01-02"), "Business Checking",
			description, signed, debit, credit, category,
		}

	case models.FormatRevolut:
		txType := "TOPUP"
		if outflow {
			txType = "CARD_PAYMENT"
		}
		category = txType
		description = e.party.name
		row = []string{
			txType, "Current", e.at.Format("2006-01-02 15:04:05"),
			e.at.Add(5 * time.Minute).Format("2006-01-02 15:04:05"),
			description, signed, "0.00", "EUR", "COMPLETED", balance.StringFixed(2),
		}

	case models.FormatXero:
		source, debit, credit := "Receive Money", "", magnitude
		if outflow {
			source, debit, credit = "Spend Money", magnitude, ""
		}
		row = []string{
			e.at.Format("02 Jan 2006"), source, e.party.name, description,
			fmt.Sprintf("INV-%04d", i+1), debit, credit, category,
		}

	default:
		row = []string{e.at.Format("2006-01-02"), description, signed, category}
	}

	return row, models.NewTransaction(e.at, description, e.amount, category, format)
}

// WriteCSV writes the header and rows to w
func (s *Sample) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to write sample header")
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to write sample rows")
	}
	return nil
}

// WriteFile writes the sample to path on fs
func (s *Sample) WriteFile(fs afero.Fs, path string) error {
	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
