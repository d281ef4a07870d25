package normalizer

import (
	"strings"

	"spendscore-service/internal/models"
)

// AmountRule selects how a layout turns its value columns into one signed
// amount where negative means money out.
type AmountRule int

const (
	// AmountSigned keeps the native sign of the amount column and falls back
	// to credit minus debit when the amount cell is empty.
	AmountSigned AmountRule = iota
	// AmountByTransactionType takes the magnitude of the amount column and
	// signs it from the transaction type column.
	AmountByTransactionType
	// AmountCreditMinusDebit merges two value columns, debit negative. The
	// amount column, if mapped, is used when both are empty.
	AmountCreditMinusDebit
	// AmountNetOfFee subtracts the fee column from an already signed amount.
	AmountNetOfFee
)

func (r AmountRule) String() string {
	switch r {
	case AmountByTransactionType:
		return "magnitude signed by transaction type"
	case AmountCreditMinusDebit:
		return "credit minus debit"
	case AmountNetOfFee:
		return "amount minus fee"
	default:
		return "signed amount"
	}
}

// ColumnMap names, by normalized header, the column feeding each canonical
// field. An empty entry means the layout does not use that field.
type ColumnMap struct {
	Date        string `json:"date" yaml:"date"`
	DateAlt     string `json:"date_alt,omitempty" yaml:"date_alt,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Vendor      string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Amount      string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Debit       string `json:"debit,omitempty" yaml:"debit,omitempty"`
	Credit      string `json:"credit,omitempty" yaml:"credit,omitempty"`
	Fee         string `json:"fee,omitempty" yaml:"fee,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	CategoryAlt string `json:"category_alt,omitempty" yaml:"category_alt,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	State       string `json:"state,omitempty" yaml:"state,omitempty"`
}

// Layout is one supported export shape: the columns that identify it, how
// its columns map to a Transaction, and how its dates and amounts read.
type Layout struct {
	Format       models.SourceFormat `json:"format" yaml:"format"`
	Name         string              `json:"name" yaml:"name"`
	Header       []string            `json:"header" yaml:"header"`
	Signature    []string            `json:"signature" yaml:"signature"`
	Columns      ColumnMap           `json:"columns" yaml:"columns"`
	DateLayouts  []string            `json:"date_layouts" yaml:"date_layouts"`
	AmountRule   AmountRule          `json:"-" yaml:"-"`
	AcceptStates []string            `json:"accept_states,omitempty" yaml:"accept_states,omitempty"`
}

// DateColumns returns the date column and its fallback, skipping unused ones
func (l Layout) DateColumns() []string {
	cols := []string{l.Columns.Date}
	if l.Columns.DateAlt != "" {
		cols = append(cols, l.Columns.DateAlt)
	}
	return cols
}

// QuickBooks transaction types whose amounts are money out or money in.
// Unlisted types keep the sign of the Amount column.
var (
	quickBooksExpenseTypes = map[string]bool{
		"expense":                    true,
		"check":                      true,
		"bill":                       true,
		"bill payment":               true,
		"bill payment (check)":       true,
		"bill payment (credit card)": true,
		"credit card expense":        true,
		"credit card charge":         true,
		"cash expense":               true,
		"purchase":                   true,
		"refund receipt":             true,
	}
	quickBooksIncomeTypes = map[string]bool{
		"deposit":            true,
		"payment":            true,
		"receive payment":    true,
		"sales receipt":      true,
		"invoice":            true,
		"credit card credit": true,
		"vendor credit":      true,
	}
)

func classifyQuickBooksType(t string) (expense, income bool) {
	t = normalizeHeader(t)
	return quickBooksExpenseTypes[t], quickBooksIncomeTypes[t]
}

var quickBooksLayout = Layout{
	Format:    models.FormatQuickBooks,
	Name:      "QuickBooks",
	Header:    []string{"Date", "Transaction Type", "Num", "Name", "Memo/Description", "Account", "Amount"},
	Signature: []string{"date", "transaction type", "memo/description", "account", "amount"},
	Columns: ColumnMap{
		Date:        "date",
		Description: "memo/description",
		Vendor:      "name",
		Amount:      "amount",
		Category:    "account",
		Type:        "transaction type",
	},
	DateLayouts: []string{"01/02/2006", "1/2/2006", "01/02/06"},
	AmountRule:  AmountByTransactionType,
}

var waveLayout = Layout{
	Format: models.FormatWave,
	Name:   "Wave",
	Header: []string{
		"Transaction ID", "Transaction Date", "Account Name", "Transaction Description",
		"Amount (One column)", "Debit Amount (Two Column Approach)",
		"Credit Amount (Two Column Approach)", "Other Accounts for this Transaction",
	},
	Signature: []string{
		"transaction date", "transaction description",
		"debit amount (two column approach)", "credit amount (two column approach)",
	},
	Columns: ColumnMap{
		Date:        "transaction date",
		Description: "transaction description",
		Amount:      "amount (one column)",
		Debit:       "debit amount (two column approach)",
		Credit:      "credit amount (two column approach)",
		Category:    "other accounts for this transaction",
		CategoryAlt: "account name",
	},
	DateLayouts: []string{"2006-01-02"},
	AmountRule:  AmountCreditMinusDebit,
}

var revolutLayout = Layout{
	Format:    models.FormatRevolut,
	Name:      "Revolut",
	Header:    []string{"Type", "Product", "Started Date", "Completed Date", "Description", "Amount", "Fee", "Currency", "State", "Balance"},
	Signature: []string{"type", "started date", "completed date", "description", "amount", "fee", "state"},
	Columns: ColumnMap{
		Date:        "completed date",
		DateAlt:     "started date",
		Description: "description",
		Amount:      "amount",
		Fee:         "fee",
		Category:    "type",
		State:       "state",
	},
	DateLayouts:  []string{"2006-01-02 15:04:05", "2006-01-02"},
	AmountRule:   AmountNetOfFee,
	AcceptStates: []string{"COMPLETED"},
}

var xeroLayout = Layout{
	Format:    models.FormatXero,
	Name:      "Xero",
	Header:    []string{"Date", "Source", "Contact", "Description", "Reference", "Debit", "Credit", "Account"},
	Signature: []string{"date", "source", "description", "reference", "debit", "credit"},
	Columns: ColumnMap{
		Date:        "date",
		Description: "description",
		Vendor:      "contact",
		Debit:       "debit",
		Credit:      "credit",
		Category:    "account",
	},
	DateLayouts: []string{"02 Jan 2006", "2 Jan 2006", "02/01/2006", "2/1/2006"},
	AmountRule:  AmountCreditMinusDebit,
}

// genericTemplate describes the fallback layout before it is resolved
// against a concrete header row.
var genericTemplate = Layout{
	Format:      models.FormatGeneric,
	Name:        "Generic CSV",
	Header:      []string{"Date", "Description", "Amount", "Category"},
	DateLayouts: models.FlexibleDateLayouts,
	AmountRule:  AmountSigned,
}

// PlatformLayouts returns the named platform layouts in tie-break order.
func PlatformLayouts() []Layout {
	return []Layout{quickBooksLayout, waveLayout, revolutLayout, xeroLayout}
}

// Layouts returns every supported layout including the generic fallback.
func Layouts() []Layout {
	return append(PlatformLayouts(), genericTemplate)
}

// LayoutFor returns the layout of a format. The generic layout returned
// here is unresolved; its columns come from the header at detection time.
func LayoutFor(format models.SourceFormat) (Layout, bool) {
	for _, l := range Layouts() {
		if l.Format == format {
			return l, true
		}
	}
	return Layout{}, false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
