package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
)

// binding applies a layout to the rows of one table
type binding struct {
	layout Layout
	table  *csvTable
	file   string
}

func (b *binding) value(record []string, col string) string {
	return b.table.index.value(record, col)
}

// filtered reports rows the layout excludes on purpose, such as pending
// card transactions, along with the reason.
func (b *binding) filtered(record []string) (string, bool) {
	col := b.layout.Columns.State
	if col == "" || len(b.layout.AcceptStates) == 0 {
		return "", false
	}
	state := b.value(record, col)
	if containsFold(b.layout.AcceptStates, state) {
		return "", false
	}
	if state == "" {
		return "transaction has no state", true
	}
	return fmt.Sprintf("transaction state %s is not settled", strings.ToUpper(state)), true
}

// convert maps one record to a Transaction. The returned RowError explains
// why the row was skipped.
func (b *binding) convert(record []string, line int) (models.Transaction, *errors.RowError) {
	date, rowErr := b.date(record, line)
	if rowErr != nil {
		return models.Transaction{}, rowErr
	}

	amount, rowErr := b.amount(record, line)
	if rowErr != nil {
		return models.Transaction{}, rowErr
	}

	cols := b.layout.Columns
	description := b.value(record, cols.Description)
	if description == "" {
		description = b.value(record, cols.Vendor)
	}
	category := b.value(record, cols.Category)
	if category == "" {
		category = b.value(record, cols.CategoryAlt)
	}

	return models.NewTransaction(date, description, amount, category, b.layout.Format), nil
}

func (b *binding) date(record []string, line int) (time.Time, *errors.RowError) {
	cols := b.layout.DateColumns()
	col, raw := cols[0], ""
	for _, c := range cols {
		if raw = b.value(record, c); raw != "" {
			col = c
			break
		}
	}
	if raw == "" {
		return time.Time{}, errors.MissingValueRow(b.file, line, b.table.displayName(col))
	}

	t, err := models.ParseDate(raw, b.layout.DateLayouts...)
	if err != nil {
		return time.Time{}, errors.InvalidDateRow(b.file, line, b.table.displayName(col), raw, b.layout.DateLayouts[0])
	}
	return t, nil
}

func (b *binding) amount(record []string, line int) (decimal.Decimal, *errors.RowError) {
	cols := b.layout.Columns

	switch b.layout.AmountRule {
	case AmountByTransactionType:
		amount, rowErr := b.required(record, line, cols.Amount)
		if rowErr != nil {
			return decimal.Zero, rowErr
		}
		expense, income := classifyQuickBooksType(b.value(record, cols.Type))
		switch {
		case expense:
			return amount.Abs().Neg(), nil
		case income:
			return amount.Abs(), nil
		}
		return amount, nil

	case AmountCreditMinusDebit:
		return b.creditMinusDebit(record, line)

	case AmountNetOfFee:
		amount, rowErr := b.required(record, line, cols.Amount)
		if rowErr != nil {
			return decimal.Zero, rowErr
		}
		raw := b.value(record, cols.Fee)
		fee, _, err := models.ParseOptionalAmount(raw)
		if err != nil {
			return decimal.Zero, errors.InvalidAmountRow(b.file, line, b.table.displayName(cols.Fee), raw)
		}
		return amount.Sub(fee.Abs()), nil

	default:
		if cols.Amount != "" {
			if raw := b.value(record, cols.Amount); raw != "" || cols.Debit == "" {
				return b.required(record, line, cols.Amount)
			}
		}
		return b.creditMinusDebit(record, line)
	}
}

// creditMinusDebit merges a two-column export into one signed amount. When
// both cells are empty the single amount column, if any, is used instead.
func (b *binding) creditMinusDebit(record []string, line int) (decimal.Decimal, *errors.RowError) {
	cols := b.layout.Columns

	debitRaw := b.value(record, cols.Debit)
	debit, hasDebit, err := models.ParseOptionalAmount(debitRaw)
	if err != nil {
		return decimal.Zero, errors.InvalidAmountRow(b.file, line, b.table.displayName(cols.Debit), debitRaw)
	}

	creditRaw := b.value(record, cols.Credit)
	credit, hasCredit, err := models.ParseOptionalAmount(creditRaw)
	if err != nil {
		return decimal.Zero, errors.InvalidAmountRow(b.file, line, b.table.displayName(cols.Credit), creditRaw)
	}

	if !hasDebit && !hasCredit {
		if cols.Amount != "" {
			return b.required(record, line, cols.Amount)
		}
		return decimal.Zero, errors.MissingValueRow(b.file, line, b.table.displayName(cols.Debit)+"/"+b.table.displayName(cols.Credit))
	}

	return credit.Abs().Sub(debit.Abs()), nil
}

func (b *binding) required(record []string, line int, col string) (decimal.Decimal, *errors.RowError) {
	raw := b.value(record, col)
	if raw == "" {
		return decimal.Zero, errors.MissingValueRow(b.file, line, b.table.displayName(col))
	}
	amount, err := models.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, errors.InvalidAmountRow(b.file, line, b.table.displayName(col), raw)
	}
	return amount, nil
}
