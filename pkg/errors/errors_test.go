package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "format error",
			category:   CategoryFormat,
			code:       CodeUnsupportedFormat,
			message:    "unsupported format",
			expectCode: 3,
		},
		{
			name:       "data error",
			category:   CategoryData,
			code:       CodeNoValidData,
			message:    "no rows",
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "scoring error",
			category:   CategoryScoring,
			code:       CodeInsufficientData,
			message:    "empty",
			expectCode: 5,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeStoreFailed,
			message:    "disk full",
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *EngineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a stack trace")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("WrapIfNeeded(nil) should return nil")
	}
}

func TestPredicatesThroughWrapChain(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"format", FormatError("a.csv", []string{"foo"}), IsFormatError},
		{"parse", ParseError(CodeEmptyFile, "a.csv", 0, nil), IsParseError},
		{"no valid data", NoValidDataError("a.csv", "wave", 3), IsNoValidData},
		{"insufficient", InsufficientDataError("score"), IsInsufficientData},
		{"not found", StorageError(CodeRecordNotFound, "abc", nil), IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("analyzing: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("predicate did not match wrapped %v", tt.err)
			}
			if tt.check(errors.New("plain")) {
				t.Error("predicate matched a plain error")
			}
		})
	}

	if IsParseError(FormatError("a.csv", nil)) {
		t.Error("format error must not be reported as parse error")
	}
}

func TestSpecificConstructors(t *testing.T) {
	t.Run("format error lists headers", func(t *testing.T) {
		err := FormatError("bank.csv", []string{"foo", "bar"})
		if err.Context["headers"] != "foo, bar" {
			t.Errorf("expected headers context, got %v", err.Context["headers"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion")
		}
	})

	t.Run("parse error wraps cause", func(t *testing.T) {
		cause := errors.New("bad utf8")
		err := ParseError(CodeEncodingError, "x.csv", 4, cause)
		if !errors.Is(err, cause) {
			t.Error("expected cause in chain")
		}
		if err.Context["line"] != 4 {
			t.Errorf("expected line 4, got %v", err.Context["line"])
		}
		if !strings.Contains(err.Message, "UTF-8") && !strings.Contains(err.Suggestion, "UTF-8") {
			t.Error("expected UTF-8 hint")
		}
	})

	t.Run("no valid data carries skip count", func(t *testing.T) {
		err := NoValidDataError("x.csv", "generic", 7)
		if err.Context["skipped_rows"] != 7 {
			t.Errorf("expected skipped_rows 7, got %v", err.Context["skipped_rows"])
		}
	})

	t.Run("storage not found without id", func(t *testing.T) {
		err := StorageError(CodeRecordNotFound, "", nil)
		if err.Message != "no stored analyses found" {
			t.Errorf("unexpected message %q", err.Message)
		}
	})
}

func TestErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Total != 0 || empty.GetExitCode() != 0 || empty.Error() != "no errors" {
		t.Errorf("unexpected empty summary %+v", empty)
	}

	errs := []*EngineError{
		FileError(CodeFileNotFound, "a.csv", nil),
		FormatError("b.csv", nil),
		StorageError(CodeStoreFailed, "id", errors.New("disk")),
	}
	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if !summary.HasCategory(CategoryFormat) || summary.HasCategory(CategoryParse) {
		t.Error("category bookkeeping is wrong")
	}
	if !summary.HasCode(CodeStoreFailed) {
		t.Error("expected store_failed code")
	}
	if summary.GetExitCode() != 6 {
		t.Errorf("expected highest exit code 6, got %d", summary.GetExitCode())
	}
	if want := "3 errors occurred (file: 1, format: 1, storage: 1)"; summary.Error() != want {
		t.Errorf("expected %q, got %q", want, summary.Error())
	}
}

func TestRowErrorCollector(t *testing.T) {
	c := NewRowErrorCollector(2)
	c.Add(InvalidAmountRow("a.csv", 2, "Amount", "abc"))
	c.Add(InvalidDateRow("a.csv", 3, "Date", "yesterday", "2006-01-02"))
	c.Add(InvalidAmountRow("a.csv", 4, "Amount", ""))
	c.Add(nil)

	if c.Count() != 3 {
		t.Errorf("expected 3 recorded rows, got %d", c.Count())
	}
	if len(c.Samples()) != 2 {
		t.Errorf("expected 2 samples, got %d", len(c.Samples()))
	}
	if c.CountByCode(CodeInvalidAmount) != 2 {
		t.Errorf("expected 2 amount errors, got %d", c.CountByCode(CodeInvalidAmount))
	}
	if c.GetSummary().Total != 2 {
		t.Errorf("summary should cover samples only")
	}

	text := FormatRowErrorsForUser(c.Samples(), c.Count())
	if !strings.Contains(text, "Skipped 3 rows") || !strings.Contains(text, "a.csv") {
		t.Errorf("unexpected formatted output:\n%s", text)
	}
}

func TestRowErrorMessage(t *testing.T) {
	err := InvalidAmountRow("/tmp/data/wave.csv", 12, "Amount", "12,3x")
	if got := err.Error(); got != "invalid amount at wave.csv:12 column 'Amount'" {
		t.Errorf("unexpected message %q", got)
	}
	detail := err.GetDetailedError()
	for _, want := range []string{"Line: 12", "Value: '12,3x'", "Examples:"} {
		if !strings.Contains(detail, want) {
			t.Errorf("detailed error missing %q:\n%s", want, detail)
		}
	}
}
