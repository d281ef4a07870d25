package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryFormat        ErrorCategory = "format"
	CategoryParse         ErrorCategory = "parse"
	CategoryData          ErrorCategory = "data"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryScoring       ErrorCategory = "scoring"
	CategoryStorage       ErrorCategory = "storage"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeDirectoryError ErrorCode = "directory_error"

	// Format errors
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeUnknownFormatName ErrorCode = "unknown_format_name"

	// Parse errors
	CodeUnreadableFile ErrorCode = "unreadable_file"
	CodeEncodingError  ErrorCode = "encoding_error"
	CodeEmptyFile      ErrorCode = "empty_file"
	CodeInvalidData    ErrorCode = "invalid_data"

	// Data errors
	CodeNoValidData ErrorCode = "no_valid_data"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Scoring errors
	CodeInsufficientData ErrorCode = "insufficient_data"

	// Storage errors
	CodeRecordNotFound ErrorCode = "record_not_found"
	CodeStoreFailed    ErrorCode = "store_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all application errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryFormat, CategoryParse, CategoryData, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryScoring, CategoryInternal:
		return 5
	case CategoryStorage:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *EngineError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is writable"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// FormatError reports an export whose header matches no known layout.
func FormatError(file string, headers []string) *EngineError {
	message := fmt.Sprintf("unsupported export format in %s: no known layout matches the header", file)
	return New(CategoryFormat, CodeUnsupportedFormat, message).
		WithSuggestion("export from QuickBooks, Wave, Revolut or Xero, or include at least a date column and an amount column").
		WithContext("file", file).
		WithContext("headers", strings.Join(headers, ", "))
}

// UnknownFormatNameError reports a caller-forced layout name that does not exist.
func UnknownFormatNameError(name string) *EngineError {
	return New(CategoryFormat, CodeUnknownFormatName, fmt.Sprintf("unknown source format %q", name)).
		WithSuggestion("use one of: quickbooks, wave, revolut, xero, generic").
		WithContext("format", name)
}

// ParseError creates a file-level parsing error. Row-level problems are
// RowErrors and never surface through this constructor.
func ParseError(code ErrorCode, file string, line int, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeUnreadableFile:
		message = fmt.Sprintf("unable to read %s as CSV", file)
		suggestion = "make sure the file is a comma-separated export"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in file %s at line %d", file, line)
		suggestion = "ensure the file is saved in UTF-8 encoding"
	case CodeEmptyFile:
		message = fmt.Sprintf("file %s has no header row", file)
		suggestion = "the export appears to be empty; re-export the transactions"
	default:
		message = fmt.Sprintf("parse error in file %s at line %d", file, line)
		suggestion = "check the file format and data integrity"
	}

	return build(CategoryParse, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("line", line)
}

// NoValidDataError reports a file whose header parsed but whose rows were
// all rejected.
func NoValidDataError(file string, format string, skipped int) *EngineError {
	message := fmt.Sprintf("no valid transactions found in %s", file)
	return New(CategoryData, CodeNoValidData, message).
		WithSuggestion("check that rows carry a parseable date and a numeric amount").
		WithContext("file", file).
		WithContext("format", format).
		WithContext("skipped_rows", skipped)
}

// InsufficientDataError is returned by the scorer for an empty input.
func InsufficientDataError(operation string) *EngineError {
	return New(CategoryScoring, CodeInsufficientData, fmt.Sprintf("insufficient data for %s: no transactions", operation)).
		WithSuggestion("provide at least one transaction").
		WithContext("operation", operation)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "every transaction needs a calendar date"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "bump the policy version when changing scoring parameters"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// StorageError creates a result-store error
func StorageError(code ErrorCode, id string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeRecordNotFound:
		if id == "" {
			message = "no stored analyses found"
		} else {
			message = fmt.Sprintf("analysis %s not found", id)
		}
		suggestion = "run 'spendscore analyze' first or check the store directory"
	case CodeStoreFailed:
		message = fmt.Sprintf("failed to store analysis %s", id)
		suggestion = "check that the store directory is writable"
	default:
		message = fmt.Sprintf("storage error for analysis %s", id)
		suggestion = "check the store directory"
	}

	return build(CategoryStorage, code, message, err).
		WithSuggestion(suggestion).
		WithContext("analysis_id", id)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *EngineError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	return build(CategoryInternal, code, message, err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*EngineError        `json:"errors"`
	SampleErrors []*EngineError        `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*EngineError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*EngineError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}
	return maxCode
}

// AsEngineError extracts an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already an EngineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}
	if engineErr, ok := AsEngineError(err); ok {
		return engineErr
	}
	return Wrap(err, category, code, message)
}

func hasCode(err error, code ErrorCode) bool {
	e, ok := AsEngineError(err)
	return ok && e.Code == code
}

// IsFormatError reports whether err is an unsupported-format failure.
func IsFormatError(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Category == CategoryFormat
}

// IsParseError reports whether err is a file-level parse failure.
func IsParseError(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Category == CategoryParse
}

// IsNoValidData reports whether err means every row was rejected.
func IsNoValidData(err error) bool {
	return hasCode(err, CodeNoValidData)
}

// IsInsufficientData reports whether err came from scoring an empty input.
func IsInsufficientData(err error) bool {
	return hasCode(err, CodeInsufficientData)
}

// IsNotFound reports whether err is a missing stored analysis.
func IsNotFound(err error) bool {
	return hasCode(err, CodeRecordNotFound)
}
