package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/multierr"

	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// maxListedErrors caps how many errors of a batch are printed
const maxListedErrors = 10

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
		out:     out,
	}
}

// HandleError prints err for a person and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if errs := multierr.Errors(err); len(errs) > 1 {
		return h.handleMultipleErrors(errs)
	}

	if engineErr, ok := errors.AsEngineError(err); ok {
		return h.handleEngineError(engineErr)
	}

	return h.handleGenericError(err)
}

// handleEngineError handles EngineError with detailed context
func (h *CLIErrorHandler) handleEngineError(err *errors.EngineError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if err.Code == errors.CodeFileNotFound {
		if path, ok := err.Context["file_path"].(string); ok {
			if similar := similarFiles(path); len(similar) > 0 {
				fmt.Fprintf(h.out, "\nSimilar files found:\n")
				for _, name := range similar {
					fmt.Fprintf(h.out, "  - %s\n", name)
				}
			}
		}
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleMultipleErrors lists the failures of a batch and returns the
// highest exit code among them
func (h *CLIErrorHandler) handleMultipleErrors(errs []error) int {
	fmt.Fprintf(h.out, "Error: %d operations failed\n", len(errs))

	var engineErrs []*errors.EngineError
	for i, err := range errs {
		if i < maxListedErrors {
			fmt.Fprintf(h.out, "  %d. %v\n", i+1, err)
		}
		if ee, ok := errors.AsEngineError(err); ok {
			engineErrs = append(engineErrs, ee)
		}
	}
	if len(errs) > maxListedErrors {
		fmt.Fprintf(h.out, "  ... and %d more errors\n", len(errs)-maxListedErrors)
	}

	if len(engineErrs) == 0 {
		return 1
	}
	summary := errors.NewErrorSummary(engineErrs)
	if h.verbose {
		fmt.Fprintf(h.out, "\nSummary: %s\n", summary.Error())
	}
	return summary.GetExitCode()
}

// handleGenericError handles errors that carry no category
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "Run with --verbose for more detail, or 'spendscore --help' for usage\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have permission to read inputs and write outputs`

	case errors.CategoryFormat:
		return `Format error help:
• Export the file from QuickBooks, Wave, Revolut or Xero without editing its header
• For other sources, include at least a date column and an amount column
• Use 'spendscore formats' to see every supported layout
• Use 'spendscore detect FILE' to see how a header is read`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the file is a CSV with a header row
• Save the file as UTF-8
• Check the delimiter (normalizer.delimiter) matches the file`

	case errors.CategoryData:
		return `Data error help:
• Every row was rejected; check the date and amount columns
• Amounts must be numbers; currency symbols and thousands separators are accepted
• Dates must use the platform's native format`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required values are present
• Verify dates and amounts are well formed`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• A changed scoring policy needs its own scoring.version
• Use 'spendscore policy' to print the active policy`

	case errors.CategoryScoring:
		return `Scoring error help:
• The export produced no transactions to score
• Check that the file has rows after its header`

	case errors.CategoryStorage:
		return `Storage error help:
• Check that --store-dir exists and is writable
• Use 'spendscore show --list' to see stored analyses
• Pass --no-store to analyze without keeping results`

	default:
		return `For more help:
• Use 'spendscore --help' for general help
• Use 'spendscore analyze --help' for command-specific help
• Run with --verbose for the underlying error`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

// similarFiles returns up to three files next to path whose names share its
// first three characters
func similarFiles(path string) []string {
	base := filepath.Base(path)
	if len(base) == 0 {
		return nil
	}
	prefix := strings.ToLower(base[:min(len(base), 3)])

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil
	}

	var similar []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == base {
			continue
		}
		if strings.Contains(strings.ToLower(entry.Name()), prefix) {
			similar = append(similar, entry.Name())
		}
		if len(similar) == 3 {
			break
		}
	}
	return similar
}
