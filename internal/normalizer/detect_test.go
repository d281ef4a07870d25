package normalizer

import (
	"math/rand"
	"testing"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
)

func TestDetect_PlatformHeaders(t *testing.T) {
	for _, layout := range PlatformLayouts() {
		t.Run(string(layout.Format), func(t *testing.T) {
			det, err := Detect(layout.Header, nil)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if det.Layout.Format != layout.Format {
				t.Errorf("expected %s, got %s (candidates %v)", layout.Format, det.Layout.Format, det.Candidates)
			}
			if det.Forced {
				t.Error("detection should not be marked forced")
			}
		})
	}
}

func TestDetect_ColumnOrderIndependent(t *testing.T) {
	headers := [][]string{
		xeroLayout.Header,
		waveLayout.Header,
		{"Posted Date", "Payee", "Withdrawal", "Deposit", "Memo", "Type"},
	}
	rng := rand.New(rand.NewSource(42))

	for _, base := range headers {
		want, err := Detect(base, nil)
		if err != nil {
			t.Fatalf("Detect(%v) error = %v", base, err)
		}

		for i := 0; i < 10; i++ {
			shuffled := append([]string(nil), base...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

			got, err := Detect(shuffled, nil)
			if err != nil {
				t.Fatalf("Detect(%v) error = %v", shuffled, err)
			}
			if got.Layout.Format != want.Layout.Format {
				t.Errorf("order %v resolved to %s, want %s", shuffled, got.Layout.Format, want.Layout.Format)
			}
			if got.Layout.Columns != want.Layout.Columns {
				t.Errorf("order %v mapped %+v, want %+v", shuffled, got.Layout.Columns, want.Layout.Columns)
			}
		}
	}
}

func TestDetect_HeaderNormalization(t *testing.T) {
	headers := []string{"  DATE ", "Transaction   Type", "Num", "Name", "memo/description", "ACCOUNT", "Amount"}
	det, err := Detect(headers, nil)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if det.Layout.Format != models.FormatQuickBooks {
		t.Errorf("expected quickbooks, got %s", det.Layout.Format)
	}
}

func TestDetect_MostSpecificWins(t *testing.T) {
	// a header carrying both QuickBooks and Xero columns resolves to the
	// layout with more signature columns
	headers := append(append([]string{}, quickBooksLayout.Header...), "Source", "Description", "Reference", "Debit", "Credit")
	det, err := Detect(headers, nil)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if det.Layout.Format != models.FormatXero {
		t.Errorf("expected xero, got %s", det.Layout.Format)
	}
	if len(det.Candidates) != 2 || det.Candidates[1] != models.FormatQuickBooks {
		t.Errorf("expected quickbooks as runner-up, got %v", det.Candidates)
	}
}

func TestSelectLayout_TieBreakByDateSamples(t *testing.T) {
	usDates := Layout{
		Format:      "us",
		Signature:   []string{"when", "value"},
		Columns:     ColumnMap{Date: "when", Amount: "value"},
		DateLayouts: []string{"01/02/2006"},
	}
	euDates := Layout{
		Format:      "eu",
		Signature:   []string{"when", "value"},
		Columns:     ColumnMap{Date: "when", Amount: "value"},
		DateLayouts: []string{"02/01/2006"},
	}
	layouts := []Layout{usDates, euDates}
	headers := []string{"when", "value"}

	sample := [][]string{{"25/12/2024", "1"}, {"31/01/2024", "2"}, {"01/02/2024", "3"}}
	got, candidates, ok := selectLayout(layouts, headers, sample)
	if !ok {
		t.Fatal("expected a layout")
	}
	if got.Format != "eu" {
		t.Errorf("expected eu layout from day-first samples, got %s", got.Format)
	}
	if len(candidates) != 2 {
		t.Errorf("expected both candidates, got %v", candidates)
	}

	got, _, _ = selectLayout(layouts, headers, nil)
	if got.Format != "us" {
		t.Errorf("expected list order to break a tie without samples, got %s", got.Format)
	}

	// reversing the candidate list does not change a sample-decided outcome
	got, _, _ = selectLayout([]Layout{euDates, usDates}, headers, [][]string{{"12/31/2024", "1"}})
	if got.Format != "us" {
		t.Errorf("expected us layout from month-first samples, got %s", got.Format)
	}
}

func TestResolveGeneric(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		ok      bool
		want    ColumnMap
	}{
		{
			name:    "simple",
			headers: []string{"date", "description", "amount", "category"},
			ok:      true,
			want:    ColumnMap{Date: "date", Description: "description", Amount: "amount", Category: "category"},
		},
		{
			name:    "exact match preferred",
			headers: []string{"value date", "date", "total amount", "amount"},
			ok:      true,
			want:    ColumnMap{Date: "date", Amount: "amount"},
		},
		{
			name:    "debit credit pair",
			headers: []string{"transaction time", "debit amount", "credit amount", "narrative", "merchant"},
			ok:      true,
			want:    ColumnMap{Date: "transaction time", Debit: "debit amount", Credit: "credit amount", Description: "narrative", Vendor: "merchant"},
		},
		{
			name:    "balance is never the amount",
			headers: []string{"date", "balance"},
			ok:      false,
		},
		{
			name:    "debit alone is not enough",
			headers: []string{"date", "debit"},
			ok:      false,
		},
		{
			name:    "no date",
			headers: []string{"description", "amount"},
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, ok := resolveGeneric(tt.headers)
			if ok != tt.ok {
				t.Fatalf("resolveGeneric ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if layout.Columns != tt.want {
				t.Errorf("columns = %+v, want %+v", layout.Columns, tt.want)
			}
			if layout.Format != models.FormatGeneric {
				t.Errorf("expected generic format, got %s", layout.Format)
			}
		})
	}
}

func TestDetect_Failures(t *testing.T) {
	if _, err := Detect([]string{"foo", "bar"}, nil); !errors.IsFormatError(err) {
		t.Errorf("expected format error, got %v", err)
	}

	_, err := detect(xeroLayout.Header, nil, "sage", "x.csv")
	ee, ok := errors.AsEngineError(err)
	if !ok || ee.Code != errors.CodeUnknownFormatName {
		t.Errorf("expected unknown format name, got %v", err)
	}

	det, err := detect(xeroLayout.Header, nil, models.FormatXero, "x.csv")
	if err != nil || !det.Forced || det.Layout.Format != models.FormatXero {
		t.Errorf("forced xero failed: %+v %v", det, err)
	}
}

func TestLayoutFor(t *testing.T) {
	for _, format := range models.AllSourceFormats {
		layout, ok := LayoutFor(format)
		if !ok {
			t.Errorf("no layout for %s", format)
			continue
		}
		if len(layout.Header) == 0 || len(layout.DateLayouts) == 0 {
			t.Errorf("layout %s is incomplete", format)
		}
	}
	if _, ok := LayoutFor("sage"); ok {
		t.Error("unexpected layout for unknown format")
	}
}
