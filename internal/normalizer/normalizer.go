// Package normalizer turns accounting-platform CSV exports into canonical
// transactions.
//
// Each supported platform (QuickBooks, Wave, Revolut, Xero) is a Layout: a
// set of signature columns that identify it, a column table mapping its
// columns onto Transaction fields, its native date layouts and the rule that
// turns its value columns into one signed amount. Files that match no
// platform fall back to a generic layout that finds date, amount (or
// debit/credit), description, vendor and category columns by name.
//
// Every amount is normalized so that negative means money out. Rows with a
// bad date or amount are skipped and counted in ParseStats; a file with no
// surviving rows fails with a no-valid-data error.
//
// Example usage:
//
//	n, err := normalizer.New(normalizer.DefaultConfig())
//	txs, stats, err := n.NormalizeFile(afero.NewOsFs(), "export.csv")
package normalizer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/afero"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// Config controls CSV reading and format detection
type Config struct {
	// Format forces a layout; empty means detect from the header.
	Format          models.SourceFormat `json:"format,omitempty" yaml:"format,omitempty"`
	Delimiter       rune                `json:"delimiter" yaml:"delimiter"`
	SampleRows      int                 `json:"sample_rows" yaml:"sample_rows"`
	MaxErrorSamples int                 `json:"max_error_samples" yaml:"max_error_samples"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Delimiter:       ',',
		SampleRows:      20,
		MaxErrorSamples: 10,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Format != "" && !c.Format.IsValid() {
		return errors.UnknownFormatNameError(string(c.Format))
	}
	if c.Delimiter == 0 || c.Delimiter == '"' || c.Delimiter == '\r' || c.Delimiter == '\n' {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if c.SampleRows < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sample_rows", c.SampleRows, nil)
	}
	if c.MaxErrorSamples < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_error_samples", c.MaxErrorSamples, nil)
	}
	return nil
}

// Normalizer reads exports into canonical transactions. It holds no state
// between calls and is safe for concurrent use.
type Normalizer struct {
	config *Config
	logger logger.Logger
}

// New creates a Normalizer with the given configuration
func New(config *Config) (*Normalizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetGlobalLogger().WithComponent("normalizer")
	log.WithFields(logger.Fields{
		"forced_format": string(config.Format),
		"delimiter":     string(config.Delimiter),
		"sample_rows":   config.SampleRows,
	}).Debug("Created normalizer")

	return &Normalizer{config: config, logger: log}, nil
}

// WithLogger replaces the component logger
func (n *Normalizer) WithLogger(l logger.Logger) *Normalizer {
	n.logger = l.WithComponent("normalizer")
	return n
}

// Config returns the active configuration
func (n *Normalizer) Config() *Config {
	return n.config
}

// NormalizeFile opens path on fs and normalizes it. The file is closed on
// every return path.
func (n *Normalizer) NormalizeFile(fs afero.Fs, path string) ([]models.Transaction, *ParseStats, error) {
	data, err := readFile(fs, path)
	if err != nil {
		n.logger.WithError(err).WithField("file_path", path).Error("Failed to read export")
		return nil, nil, err
	}
	return n.normalizeBytes(data, path)
}

// Normalize reads an export from r. name is used in diagnostics only.
func (n *Normalizer) Normalize(r io.Reader, name string) ([]models.Transaction, *ParseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.ParseError(errors.CodeUnreadableFile, name, 0, err)
	}
	return n.normalizeBytes(data, name)
}

// DetectFile reports which layout a file resolves to without converting rows
func (n *Normalizer) DetectFile(fs afero.Fs, path string) (*Detection, []string, error) {
	data, err := readFile(fs, path)
	if err != nil {
		return nil, nil, err
	}
	table, err := n.readTable(data, path)
	if err != nil {
		return nil, nil, err
	}
	det, err := detect(table.headers, table.sample(n.config.SampleRows), n.config.Format, path)
	if err != nil {
		return nil, table.headers, err
	}
	return det, table.headers, nil
}

func readFile(fs afero.Fs, path string) ([]byte, error) {
	file, err := fs.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.ParseError(errors.CodeUnreadableFile, path, 0, err)
		}
	}
	defer file.Close()

	if info, err := file.Stat(); err == nil && info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, path, fmt.Errorf("%s is a directory", path))
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, errors.ParseError(errors.CodeUnreadableFile, path, 0, err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) readTable(data []byte, name string) (*csvTable, error) {
	decoded, err := decodeInput(data, name)
	if err != nil {
		return nil, err
	}
	return readTable(decoded, name, n.config.Delimiter)
}

func (n *Normalizer) normalizeBytes(data []byte, name string) ([]models.Transaction, *ParseStats, error) {
	log := n.logger.WithField("file", name)
	op := logger.NewOperationLogger("normalize", log)

	table, err := n.readTable(data, name)
	if err != nil {
		op.Error(err, "Failed to read export")
		return nil, nil, err
	}

	stats := newParseStats(name, n.config.MaxErrorSamples)

	det, err := detect(table.headers, table.sample(n.config.SampleRows), n.config.Format, name)
	if err != nil {
		op.Error(err, "No layout matches the export header")
		return nil, stats, err
	}
	stats.Format = det.Layout.Format
	log = log.WithField("format", string(det.Layout.Format))
	log.WithField("candidates", det.Candidates).Debug("Detected export layout")

	for _, failure := range table.malformed {
		stats.TotalRows++
		stats.skip(errors.MalformedRow(name, failure.line, failure.err))
	}

	b := &binding{layout: det.Layout, table: table, file: name}
	transactions := make([]models.Transaction, 0, len(table.rows))

	for _, row := range table.rows {
		stats.TotalRows++

		if reason, skip := b.filtered(row.fields); skip {
			stats.FilteredRows++
			log.WithFields(logger.Fields{"line": row.line, "reason": reason}).Debug("Row filtered")
			continue
		}

		tx, rowErr := b.convert(row.fields, row.line)
		if rowErr != nil {
			stats.skip(rowErr)
			log.WithField("line", row.line).Debug(rowErr.Error())
			continue
		}

		transactions = append(transactions, tx)
		stats.ValidRows++
	}

	if len(transactions) == 0 {
		err := errors.NoValidDataError(name, string(det.Layout.Format), stats.SkippedRows)
		op.Error(err, "Export has no usable rows")
		return nil, stats, err
	}

	if stats.SkippedRows > 0 {
		log.WithFields(logger.Fields{
			"skipped_rows": stats.SkippedRows,
			"reasons":      stats.SkipReasons(),
		}).Warn("Skipped malformed rows")
	}

	op.WithField("format", string(det.Layout.Format)).
		WithField("valid_rows", stats.ValidRows).
		WithField("skipped_rows", stats.SkippedRows).
		WithField("filtered_rows", stats.FilteredRows).
		Success("Normalized export")

	return transactions, stats, nil
}

// ParseStats holds diagnostics about one normalization run
type ParseStats struct {
	File         string              `json:"file"`
	Format       models.SourceFormat `json:"format"`
	TotalRows    int                 `json:"total_rows"`
	ValidRows    int                 `json:"valid_rows"`
	SkippedRows  int                 `json:"skipped_rows"`
	FilteredRows int                 `json:"filtered_rows"`

	collector *errors.RowErrorCollector
}

func newParseStats(file string, maxSamples int) *ParseStats {
	return &ParseStats{
		File:      file,
		collector: errors.NewRowErrorCollector(maxSamples),
	}
}

func (ps *ParseStats) skip(err *errors.RowError) {
	ps.SkippedRows++
	ps.collector.Add(err)
}

// HasSkips returns true if any rows were dropped as malformed
func (ps *ParseStats) HasSkips() bool {
	return ps.SkippedRows > 0
}

// SampleErrors returns the retained row diagnostics
func (ps *ParseStats) SampleErrors() []*errors.RowError {
	if ps.collector == nil {
		return nil
	}
	return ps.collector.Samples()
}

// SampleMessages renders up to max retained diagnostics; max <= 0 means all
func (ps *ParseStats) SampleMessages(max int) []string {
	samples := ps.SampleErrors()
	if max > 0 && max < len(samples) {
		samples = samples[:max]
	}
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Error()
	}
	return out
}

// SkipReasons counts skipped rows by error code, keyed in sorted order when
// iterated through SkipReasonKeys.
func (ps *ParseStats) SkipReasons() map[string]int {
	out := make(map[string]int)
	if ps.collector == nil {
		return out
	}
	for code, count := range ps.collector.CountsByCode() {
		out[string(code)] = count
	}
	return out
}

// SkipReasonKeys returns the skip reason codes sorted
func (ps *ParseStats) SkipReasonKeys() []string {
	reasons := ps.SkipReasons()
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s (%s): %d rows, %d valid, %d skipped, %d filtered",
		ps.File, ps.Format, ps.TotalRows, ps.ValidRows, ps.SkippedRows, ps.FilteredRows)
}
