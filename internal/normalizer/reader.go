package normalizer

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"spendscore-service/pkg/errors"
)

type rawRow struct {
	line   int
	fields []string
}

type rowFailure struct {
	line int
	err  error
}

// csvTable is a decoded export: the header row, the non-blank data rows and
// the records the CSV reader rejected.
type csvTable struct {
	headers    []string
	normalized []string
	index      headerIndex
	rows       []rawRow
	malformed  []rowFailure
}

// headerIndex maps normalized header names to column positions. The first
// occurrence of a repeated header wins.
type headerIndex map[string]int

func newHeaderIndex(normalized []string) headerIndex {
	idx := make(headerIndex, len(normalized))
	for i, h := range normalized {
		if h == "" {
			continue
		}
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	return idx
}

func (idx headerIndex) has(name string) bool {
	_, ok := idx[name]
	return ok
}

// value returns the trimmed cell for a normalized column name, or "" when
// the column is unused, absent or beyond the end of a short record.
func (idx headerIndex) value(record []string, name string) string {
	if name == "" {
		return ""
	}
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// normalizeHeader trims, strips a stray BOM, lower-cases and collapses
// inner whitespace so that header matching ignores cosmetic differences.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = normalizeHeader(h)
	}
	return out
}

// decodeInput strips a UTF-8 BOM (converting BOM-marked UTF-16 to UTF-8)
// and rejects anything that is still not valid UTF-8.
func decodeInput(data []byte, name string) ([]byte, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, name, 1, err)
	}

	if utf8.Valid(decoded) {
		return decoded, nil
	}

	line := 1
	for rest := decoded; len(rest) > 0; {
		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size <= 1 {
			break
		}
		if r == '\n' {
			line++
		}
		rest = rest[size:]
	}
	return nil, errors.ParseError(errors.CodeEncodingError, name, line, fmt.Errorf("invalid UTF-8 byte sequence"))
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func newCSVReader(data []byte, delimiter rune) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// readTable reads the header row and every data row. A missing header is a
// file-level failure; bad data records are kept aside for the skip counter.
func readTable(data []byte, name string, delimiter rune) (*csvTable, error) {
	reader := newCSVReader(data, delimiter)
	table := &csvTable{}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, errors.ParseError(errors.CodeEmptyFile, name, 0, nil)
		}
		if err != nil {
			return nil, errors.ParseError(errors.CodeUnreadableFile, name, lineOf(err, 1), err)
		}
		if isBlankRecord(record) {
			continue
		}
		table.headers = make([]string, len(record))
		for i, h := range record {
			table.headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
		break
	}

	table.normalized = normalizeHeaders(table.headers)
	table.index = newHeaderIndex(table.normalized)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			table.malformed = append(table.malformed, rowFailure{line: lineOf(err, 0), err: err})
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		table.rows = append(table.rows, rawRow{line: line, fields: record})
	}

	return table, nil
}

func lineOf(err error, fallback int) int {
	var parseErr *csv.ParseError
	if stderrors.As(err, &parseErr) {
		return parseErr.StartLine
	}
	return fallback
}

// sample returns up to n data rows for detection tie-breaking
func (t *csvTable) sample(n int) [][]string {
	if n > len(t.rows) {
		n = len(t.rows)
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = t.rows[i].fields
	}
	return out
}

// displayName returns the header as written in the file for a normalized name
func (t *csvTable) displayName(normalized string) string {
	if i, ok := t.index[normalized]; ok {
		return t.headers[i]
	}
	return normalized
}
