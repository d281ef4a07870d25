package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RowContext locates a rejected row inside an export
type RowContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError describes a single row the normalizer skipped. It never aborts
// the surrounding file.
type RowError struct {
	*EngineError
	Row      *RowContext `json:"row"`
	Examples []string    `json:"examples,omitempty"`
}

// Error implements the error interface with location information
func (e *RowError) Error() string {
	parts := []string{e.EngineError.Message}

	if e.Row != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Row.File))
		if e.Row.Line > 0 {
			location += fmt.Sprintf(":%d", e.Row.Line)
		}
		if e.Row.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Row.Column)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// GetDetailedError returns a detailed multi-line error description
func (e *RowError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ROW SKIPPED: %s", e.Message)}

	if e.Row != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", e.Row.File))
		if e.Row.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", e.Row.Line))
		}
		if e.Row.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", e.Row.Column))
		}
		if e.Row.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", e.Row.Value))
		}
		if e.Row.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", e.Row.Expected))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}

	if len(e.Examples) > 0 {
		lines = append(lines, "  → Examples:")
		for _, example := range e.Examples {
			lines = append(lines, fmt.Sprintf("    • %s", example))
		}
	}

	return strings.Join(lines, "\n")
}

// NewRowError creates a row-level diagnostic
func NewRowError(code ErrorCode, row *RowContext, message string, cause error) *RowError {
	base := build(CategoryValidation, code, message, cause)
	if row != nil {
		base.WithContext("file", row.File).
			WithContext("line", row.Line).
			WithContext("column", row.Column).
			WithContext("value", row.Value)
	}
	return &RowError{EngineError: base, Row: row}
}

// WithExamples adds example values to help fix the row
func (e *RowError) WithExamples(examples ...string) *RowError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the RowError
func (e *RowError) WithSuggestion(suggestion string) *RowError {
	e.EngineError.WithSuggestion(suggestion)
	return e
}

// InvalidAmountRow reports a row whose amount could not be parsed
func InvalidAmountRow(file string, line int, column, value string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value, Expected: "decimal number"}
	return NewRowError(CodeInvalidAmount, row, "invalid amount", nil).
		WithExamples("12.34", "-1,250.50", "(45.00)").
		WithSuggestion("use a plain decimal amount; currency symbols and thousands separators are stripped")
}

// InvalidDateRow reports a row whose date could not be parsed
func InvalidDateRow(file string, line int, column, value, layout string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value, Expected: layout}
	return NewRowError(CodeInvalidDate, row, "invalid date", nil).
		WithSuggestion(fmt.Sprintf("dates for this export are expected as %s", layout))
}

// MissingValueRow reports a row lacking a required value
func MissingValueRow(file string, line int, column string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Expected: "non-empty value"}
	return NewRowError(CodeMissingField, row, "required field is empty", nil).
		WithSuggestion("provide a value for this field or remove the row")
}

// MalformedRow reports a record the CSV reader itself rejected
func MalformedRow(file string, line int, cause error) *RowError {
	row := &RowContext{File: file, Line: line}
	return NewRowError(CodeInvalidData, row, "malformed CSV record", cause).
		WithSuggestion("check quoting and the number of fields on this line")
}

// FilteredRow reports a row excluded by layout rules (e.g. a pending transfer)
func FilteredRow(file string, line int, column, value, reason string) *RowError {
	row := &RowContext{File: file, Line: line, Column: column, Value: value}
	return NewRowError(CodeOutOfRange, row, reason, nil)
}

// RowErrorCollector counts skipped rows and keeps a bounded sample of them
type RowErrorCollector struct {
	samples    []*RowError
	maxSamples int
	total      int
	byCode     map[ErrorCode]int
}

// NewRowErrorCollector creates a new collector keeping at most maxSamples errors
func NewRowErrorCollector(maxSamples int) *RowErrorCollector {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &RowErrorCollector{
		samples:    make([]*RowError, 0),
		maxSamples: maxSamples,
		byCode:     make(map[ErrorCode]int),
	}
}

// Add records a skipped row
func (c *RowErrorCollector) Add(err *RowError) {
	if err == nil {
		return
	}
	c.total++
	c.byCode[err.Code]++
	if len(c.samples) < c.maxSamples {
		c.samples = append(c.samples, err)
	}
}

// Count returns the number of rows recorded, including those not sampled
func (c *RowErrorCollector) Count() int {
	return c.total
}

// CountByCode returns how many rows were skipped for the given reason
func (c *RowErrorCollector) CountByCode(code ErrorCode) int {
	return c.byCode[code]
}

// CountsByCode returns a copy of the per-reason counters
func (c *RowErrorCollector) CountsByCode() map[ErrorCode]int {
	out := make(map[ErrorCode]int, len(c.byCode))
	for code, n := range c.byCode {
		out[code] = n
	}
	return out
}

// HasErrors returns true if any rows have been recorded
func (c *RowErrorCollector) HasErrors() bool {
	return c.total > 0
}

// Samples returns the retained row errors
func (c *RowErrorCollector) Samples() []*RowError {
	return c.samples
}

// GetSummary returns an error summary of the retained samples
func (c *RowErrorCollector) GetSummary() *ErrorSummary {
	base := make([]*EngineError, len(c.samples))
	for i, err := range c.samples {
		base[i] = err.EngineError
	}
	return NewErrorSummary(base)
}

// FormatRowErrorsForUser formats sampled row errors grouped by file
func FormatRowErrorsForUser(errs []*RowError, total int) string {
	if len(errs) == 0 {
		return "No skipped rows"
	}
	if len(errs) == 1 && total <= 1 {
		return errs[0].GetDetailedError()
	}

	lines := []string{fmt.Sprintf("Skipped %d rows:", total), ""}

	var files []string
	byFile := make(map[string][]*RowError)
	for _, err := range errs {
		file := "unknown"
		if err.Row != nil {
			file = filepath.Base(err.Row.File)
		}
		if _, seen := byFile[file]; !seen {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], err)
	}

	maxDetailed := 3
	for _, file := range files {
		fileErrors := byFile[file]
		lines = append(lines, fmt.Sprintf("File: %s (%d sampled)", file, len(fileErrors)))
		for i, err := range fileErrors {
			if i == maxDetailed {
				lines = append(lines, "", fmt.Sprintf("... and %d more in this file", len(fileErrors)-maxDetailed))
				break
			}
			lines = append(lines, "", err.GetDetailedError())
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
