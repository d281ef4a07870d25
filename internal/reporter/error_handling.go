package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"spendscore-service/internal/analysis"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks: a
// failed write to a file is retried against a backup file next to it, and a
// failed structured encoding falls back to the console format.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
	stderr io.Writer
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
		stderr:          os.Stderr,
	}, nil
}

// GenerateReportSafely renders one record with fallbacks
func (srg *SafeReportGenerator) GenerateReportSafely(record *analysis.Record, writer io.Writer) error {
	if record == nil {
		return errors.ValidationError(errors.CodeMissingField, "record", nil, nil).
			WithSuggestion("provide a completed analysis")
	}
	return srg.run("analysis", writer, func(g *ReportGenerator, w io.Writer) error {
		return g.GenerateReport(record, w)
	})
}

// GenerateBatchReportSafely renders a batch with fallbacks
func (srg *SafeReportGenerator) GenerateBatchReportSafely(batch *analysis.BatchResult, writer io.Writer) error {
	if batch == nil {
		return errors.ValidationError(errors.CodeMissingField, "batch", nil, nil)
	}
	return srg.run("batch", writer, func(g *ReportGenerator, w io.Writer) error {
		return g.GenerateBatchReport(batch, w)
	})
}

type renderFunc func(g *ReportGenerator, w io.Writer) error

func (srg *SafeReportGenerator) run(kind string, writer io.Writer, render renderFunc) error {
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("provide a valid output writer")
	}

	log := srg.logger.WithFields(logger.Fields{
		"report": kind,
		"format": string(srg.config.Format),
		"output": getWriterDescription(writer),
	})
	log.Debug("Starting report generation")

	if err := srg.generateWithFallback(render, writer); err != nil {
		log.WithError(err).Error("Report generation failed")
		return err
	}

	log.Debug("Report generation completed")
	return nil
}

// generateWithFallback attempts the primary render, then an output or
// format fallback depending on what failed
func (srg *SafeReportGenerator) generateWithFallback(render renderFunc, writer io.Writer) error {
	err := render(srg.ReportGenerator, writer)
	if err == nil {
		return nil
	}

	srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")

	if srg.shouldAttemptOutputFallback(err, writer) {
		return srg.generateWithOutputFallback(render, writer, err)
	}
	if srg.shouldAttemptFormatFallback(err) {
		return srg.generateWithFormatFallback(render, writer, err)
	}
	return srg.wrapGenerationError(err)
}

// shouldAttemptFormatFallback is true for encoding failures of a structured format
func (srg *SafeReportGenerator) shouldAttemptFormatFallback(err error) bool {
	if srg.config.Format == FormatConsole {
		return false
	}
	ee, ok := errors.AsEngineError(err)
	if !ok {
		return false
	}
	op := ee.Context["operation"]
	return op == "json_encoding" || op == "yaml_encoding"
}

func (srg *SafeReportGenerator) generateWithFormatFallback(render renderFunc, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := render(fallbackGenerator, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.Info("Report generated using format fallback")
	return nil
}

// shouldAttemptOutputFallback is true when a named file could not be written
func (srg *SafeReportGenerator) shouldAttemptOutputFallback(err error, writer io.Writer) bool {
	if file, ok := writer.(*os.File); ok && file.Name() != "" && file != os.Stdout && file != os.Stderr {
		return isFileError(err)
	}
	return false
}

func (srg *SafeReportGenerator) generateWithOutputFallback(render renderFunc, writer io.Writer, originalErr error) error {
	file, ok := writer.(*os.File)
	if !ok {
		return srg.wrapGenerationError(originalErr)
	}

	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if err := render(srg.ReportGenerator, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	srg.logger.WithField("backup_file", backupPath).Info("Report written to backup file")
	fmt.Fprintf(srg.stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if engineErr, ok := errors.AsEngineError(err); ok {
		return engineErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func isFileError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		stderrors.Is(err, os.ErrNotExist) ||
		stderrors.Is(err, os.ErrClosed) ||
		stderrors.Is(err, syscall.ENOSPC) ||
		stderrors.Is(err, syscall.EBADF) ||
		strings.Contains(err.Error(), "no space left")
}

// generateBackupPath turns report.json into report_backup.json
func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
