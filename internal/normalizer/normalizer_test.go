package normalizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
)

func getTestFilePath(filename string) string {
	return filepath.Join("testdata", filename)
}

func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func newTestNormalizer(t *testing.T, config *Config) *Normalizer {
	t.Helper()
	n, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

func amountsOf(txs []models.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Amount.StringFixed(2)
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Delimiter != ',' {
		t.Errorf("expected comma delimiter, got %q", config.Delimiter)
	}
	if config.Format != "" {
		t.Errorf("expected detection by default, got forced %s", config.Format)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown format", func(c *Config) { c.Format = "sage" }},
		{"zero delimiter", func(c *Config) { c.Delimiter = 0 }},
		{"quote delimiter", func(c *Config) { c.Delimiter = '"' }},
		{"no sample rows", func(c *Config) { c.SampleRows = 0 }},
		{"negative samples", func(c *Config) { c.MaxErrorSamples = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
			if _, err := New(config); err == nil {
				t.Error("New should reject invalid config")
			}
		})
	}
}

func TestNormalizeFile_Platforms(t *testing.T) {
	tests := []struct {
		file         string
		format       models.SourceFormat
		amounts      []string
		categories   []string
		skipped      int
		filtered     int
		descriptions map[int]string
	}{
		{
			file:         "quickbooks.csv",
			format:       models.FormatQuickBooks,
			amounts:      []string{"-45.00", "2500.00", "-1200.00", "-10.00", "-89.99"},
			categories:   []string{"Meals", "Income", "Rent", "Misc", "Office Supplies"},
			descriptions: map[int]string{0: "Coffee beans", 4: "Office Depot"},
		},
		{
			file:         "wave.csv",
			format:       models.FormatWave,
			amounts:      []string{"1500.00", "-320.50", "-15.00", "75.00"},
			categories:   []string{"Sales", "Software", "Business Checking", "Sales"},
			skipped:      1,
			descriptions: map[int]string{1: "AWS invoice"},
		},
		{
			file:         "revolut.csv",
			format:       models.FormatRevolut,
			amounts:      []string{"-23.40", "500.00", "-100.50"},
			categories:   []string{"CARD_PAYMENT", "TOPUP", "EXCHANGE"},
			skipped:      1,
			filtered:     1,
			descriptions: map[int]string{0: "Uber"},
		},
		{
			file:         "xero.csv",
			format:       models.FormatXero,
			amounts:      []string{"-54.20", "3200.00", "-89.00", "-640.00"},
			categories:   []string{"Office Expenses", "Sales", "Telephone", "Travel"},
			descriptions: map[int]string{2: "Telstra"},
		},
		{
			file:       "generic.csv",
			format:     models.FormatGeneric,
			amounts:    []string{"-4.50", "2000.00", "-4.50"},
			categories: []string{"Food", "Income", "Food"},
		},
		{
			file:         "generic_bank.csv",
			format:       models.FormatGeneric,
			amounts:      []string{"-4.50", "3000.00", "-1234.56"},
			categories:   []string{models.UncategorizedCategory, models.UncategorizedCategory, models.UncategorizedCategory},
			descriptions: map[int]string{0: "Latte"},
		},
	}

	n := newTestNormalizer(t, nil)

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			txs, stats, err := n.NormalizeFile(afero.NewOsFs(), getTestFilePath(tt.file))
			if err != nil {
				t.Fatalf("NormalizeFile() error = %v", err)
			}

			if stats.Format != tt.format {
				t.Errorf("expected format %s, got %s", tt.format, stats.Format)
			}
			got := amountsOf(txs)
			if strings.Join(got, ",") != strings.Join(tt.amounts, ",") {
				t.Errorf("amounts = %v, want %v", got, tt.amounts)
			}
			for i, tx := range txs {
				if tx.SourceFormat != tt.format {
					t.Errorf("row %d source format = %s", i, tx.SourceFormat)
				}
				if i < len(tt.categories) && tx.Category != tt.categories[i] {
					t.Errorf("row %d category = %q, want %q", i, tx.Category, tt.categories[i])
				}
				if tx.Date.IsZero() {
					t.Errorf("row %d has zero date", i)
				}
			}
			for i, want := range tt.descriptions {
				if txs[i].Description != want {
					t.Errorf("row %d description = %q, want %q", i, txs[i].Description, want)
				}
			}
			if stats.SkippedRows != tt.skipped {
				t.Errorf("skipped = %d, want %d (%v)", stats.SkippedRows, tt.skipped, stats.SampleMessages(0))
			}
			if stats.FilteredRows != tt.filtered {
				t.Errorf("filtered = %d, want %d", stats.FilteredRows, tt.filtered)
			}
			if stats.ValidRows != len(txs) {
				t.Errorf("valid rows %d does not match %d transactions", stats.ValidRows, len(txs))
			}
			if stats.TotalRows != stats.ValidRows+stats.SkippedRows+stats.FilteredRows {
				t.Errorf("row accounting mismatch: %s", stats)
			}
		})
	}
}

func TestNormalize_NativeDateFormats(t *testing.T) {
	n := newTestNormalizer(t, nil)

	tests := []struct {
		file string
		want time.Time
	}{
		{"quickbooks.csv", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"wave.csv", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"revolut.csv", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"xero.csv", time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			txs, _, err := n.NormalizeFile(afero.NewOsFs(), getTestFilePath(tt.file))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !txs[0].Date.Equal(tt.want) {
				t.Errorf("first date = %v, want %v", txs[0].Date, tt.want)
			}
		})
	}

	txs, _, err := n.NormalizeFile(afero.NewOsFs(), getTestFilePath("xero.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC); !txs[3].Date.Equal(want) {
		t.Errorf("xero slash date should be day-first, got %v", txs[3].Date)
	}
}

func TestNormalize_CoffeePaycheckExample(t *testing.T) {
	content := `date,description,amount,category
2024-01-05,Coffee,-4.50,Food
2024-01-06,Paycheck,2000.00,Income
2024-01-07,Coffee,-4.50,Food
`
	n := newTestNormalizer(t, nil)
	txs, stats, err := n.Normalize(strings.NewReader(content), "example.csv")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	outflow, inflow := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if tx.IsOutflow() {
			outflow = outflow.Add(tx.Magnitude())
		} else {
			inflow = inflow.Add(tx.Amount)
		}
	}
	if !outflow.Equal(decimal.RequireFromString("9.00")) {
		t.Errorf("total outflow = %s, want 9.00", outflow)
	}
	if !inflow.Equal(decimal.RequireFromString("2000.00")) {
		t.Errorf("total inflow = %s, want 2000.00", inflow)
	}
	if stats.Format != models.FormatGeneric {
		t.Errorf("expected generic format, got %s", stats.Format)
	}
}

func TestNormalize_NonNumericAmountSkipped(t *testing.T) {
	content := `Date,Description,Amount,Category
2024-01-05,Coffee,-4.50,Food
2024-01-06,Mystery,twelve,Misc
2024-01-07,Lunch,-12.00,Food
2024-01-08,No amount,,Misc
`
	n := newTestNormalizer(t, nil)
	txs, stats, err := n.Normalize(strings.NewReader(content), "skips.csv")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(txs))
	}
	if stats.SkippedRows != 2 {
		t.Errorf("expected 2 skipped rows, got %d", stats.SkippedRows)
	}
	reasons := stats.SkipReasons()
	if reasons[string(errors.CodeInvalidAmount)] != 1 || reasons[string(errors.CodeMissingField)] != 1 {
		t.Errorf("unexpected skip reasons %v", reasons)
	}
	samples := stats.SampleErrors()
	if len(samples) != 2 || samples[0].Row.Line != 3 {
		t.Errorf("expected first sample at line 3, got %+v", samples)
	}
}

func TestNormalize_FileLevelFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(error) bool
	}{
		{"zero bytes", "", errors.IsParseError},
		{"blank lines only", "\n\n   \n", errors.IsParseError},
		{"header only", "Date,Description,Amount\n", errors.IsNoValidData},
		{"header with blank rows", "Date,Description,Amount\n,,\n\n", errors.IsNoValidData},
		{"all rows invalid", "Date,Description,Amount\nsoon,x,1\n2024-01-01,y,abc\n", errors.IsNoValidData},
		{"unknown header", "foo,bar,baz\n1,2,3\n", errors.IsFormatError},
		{"date without amount", "Date,Notes\n2024-01-01,hello\n", errors.IsFormatError},
		{"invalid utf8", "Date,Description,Amount\n2024-01-01,caf\xe9,-3.00\n", errors.IsParseError},
	}

	n := newTestNormalizer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, _, err := n.Normalize(strings.NewReader(tt.content), "bad.csv")
			if err == nil {
				t.Fatalf("expected error, got %d transactions", len(txs))
			}
			if !tt.check(err) {
				t.Errorf("unexpected error type: %v", err)
			}
			if txs != nil {
				t.Error("no transactions should be returned on failure")
			}
		})
	}
}

func TestNormalize_EncodingErrorLine(t *testing.T) {
	n := newTestNormalizer(t, nil)
	_, _, err := n.Normalize(strings.NewReader("Date,Description,Amount\n2024-01-01,ok,1\n2024-01-02,caf\xe9,2\n"), "latin1.csv")
	ee, ok := errors.AsEngineError(err)
	if !ok {
		t.Fatalf("expected engine error, got %v", err)
	}
	if ee.Code != errors.CodeEncodingError {
		t.Errorf("expected encoding error, got %s", ee.Code)
	}
	if ee.Context["line"] != 3 {
		t.Errorf("expected line 3, got %v", ee.Context["line"])
	}
}

func TestNormalize_ByteOrderMark(t *testing.T) {
	content := "\ufeffDate,Description,Amount\n2024-01-01,Rent,-900\n"
	n := newTestNormalizer(t, nil)
	txs, stats, err := n.Normalize(strings.NewReader(content), "bom.csv")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(txs) != 1 || stats.Format != models.FormatGeneric {
		t.Errorf("unexpected result %v %s", txs, stats)
	}
}

func TestNormalize_MalformedRecordCounted(t *testing.T) {
	content := "Date,Description,Amount\n2024-01-01,ok,-1\n2024-01-02,\"bad\"quote,-2\n2024-01-03,fine,-3\n"
	n := newTestNormalizer(t, nil)
	txs, stats, err := n.Normalize(strings.NewReader(content), "quotes.csv")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(txs))
	}
	if stats.SkippedRows != 1 {
		t.Errorf("expected 1 skipped row, got %d", stats.SkippedRows)
	}
	if stats.SkipReasons()[string(errors.CodeInvalidData)] != 1 {
		t.Errorf("expected malformed record reason, got %v", stats.SkipReasons())
	}
}

func TestNormalize_ShortRowsAndParentheses(t *testing.T) {
	content := "Date,Amount,Description,Category\n2024-01-01,(45.00)\n2024-01-02\n"
	n := newTestNormalizer(t, nil)
	txs, stats, err := n.Normalize(strings.NewReader(content), "short.csv")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(txs) != 1 || stats.SkippedRows != 1 {
		t.Fatalf("expected 1 transaction and 1 skip, got %d (%v)", len(txs), stats.SampleMessages(0))
	}
	if !txs[0].Amount.Equal(decimal.NewFromInt(-45)) {
		t.Errorf("expected -45, got %s", txs[0].Amount)
	}
	if txs[0].Category != models.UncategorizedCategory {
		t.Errorf("expected default category, got %q", txs[0].Category)
	}
}

func TestNormalizeFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	n := newTestNormalizer(t, nil)

	_, _, err := n.NormalizeFile(fs, "/missing.csv")
	ee, ok := errors.AsEngineError(err)
	if !ok || ee.Code != errors.CodeFileNotFound {
		t.Errorf("expected file not found, got %v", err)
	}

	if err := fs.MkdirAll("/exports", 0755); err != nil {
		t.Fatal(err)
	}
	_, _, err = n.NormalizeFile(fs, "/exports")
	ee, ok = errors.AsEngineError(err)
	if !ok || ee.Code != errors.CodeDirectoryError {
		t.Errorf("expected directory error, got %v", err)
	}

	if err := afero.WriteFile(fs, "/exports/a.csv", []byte("Date,Amount\n2024-01-01,-5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	txs, _, err := n.NormalizeFile(fs, "/exports/a.csv")
	if err != nil || len(txs) != 1 {
		t.Errorf("expected one transaction from memory fs, got %v %v", txs, err)
	}
}

func TestNormalizeFile_TempFile(t *testing.T) {
	path := createTempCSVFile(t, "Posted Date;Money Out;Money In;Details\n2024-06-01;12.50;;Parking\n2024-06-02;;800;Invoice 7\n")
	config := DefaultConfig()
	config.Delimiter = ';'
	n := newTestNormalizer(t, config)

	txs, stats, err := n.NormalizeFile(afero.NewOsFs(), path)
	if err != nil {
		t.Fatalf("NormalizeFile() error = %v", err)
	}
	if got := strings.Join(amountsOf(txs), ","); got != "-12.50,800.00" {
		t.Errorf("amounts = %s", got)
	}
	if txs[0].Description != "Parking" {
		t.Errorf("expected description from Details, got %q", txs[0].Description)
	}
	if stats.File != path {
		t.Errorf("expected stats for %s, got %s", path, stats.File)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t, nil)
	first, _, err := n.NormalizeFile(afero.NewOsFs(), getTestFilePath("wave.csv"))
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := n.NormalizeFile(afero.NewOsFs(), getTestFilePath("wave.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equals(second[i]) {
			t.Errorf("row %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestNormalize_ForcedFormat(t *testing.T) {
	qb, err := os.ReadFile(getTestFilePath("quickbooks.csv"))
	if err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.Format = models.FormatWave
	_, _, err = newTestNormalizer(t, config).Normalize(strings.NewReader(string(qb)), "qb.csv")
	if !errors.IsFormatError(err) {
		t.Errorf("forcing wave on a QuickBooks export should be a format error, got %v", err)
	}

	config = DefaultConfig()
	config.Format = models.FormatGeneric
	txs, stats, err := newTestNormalizer(t, config).Normalize(strings.NewReader(string(qb)), "qb.csv")
	if err != nil {
		t.Fatalf("forced generic error = %v", err)
	}
	if stats.Format != models.FormatGeneric {
		t.Errorf("expected generic, got %s", stats.Format)
	}
	// generic keeps the native sign, so the positive expense stays positive
	if !txs[0].Amount.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected native sign 45, got %s", txs[0].Amount)
	}
}

func TestParseStats_String(t *testing.T) {
	stats := newParseStats("a.csv", 2)
	stats.Format = models.FormatXero
	stats.TotalRows = 4
	stats.ValidRows = 3
	stats.skip(errors.InvalidAmountRow("a.csv", 2, "Debit", "x"))

	want := "a.csv (xero): 4 rows, 3 valid, 1 skipped, 0 filtered"
	if stats.String() != want {
		t.Errorf("String() = %q, want %q", stats.String(), want)
	}
	if !stats.HasSkips() {
		t.Error("expected HasSkips")
	}
	if keys := stats.SkipReasonKeys(); len(keys) != 1 || keys[0] != string(errors.CodeInvalidAmount) {
		t.Errorf("unexpected keys %v", keys)
	}
}
