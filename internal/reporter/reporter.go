// Package reporter renders analysis records for people and for programs.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - YAML: the JSON document in YAML form
//   - CSV: one row per metric, for spreadsheet applications
//
// Report types available:
//   - Analysis reports: score, tier, breakdown and diagnostics for one export
//   - Batch reports: every analysis of a run plus the files that failed
//   - History reports: one line per stored analysis
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.GenerateReport(record, os.Stdout)
package reporter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"spendscore-service/internal/analysis"
	"spendscore-service/pkg/errors"
)

var decimalHundred = decimal.NewFromInt(100)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
)

// OutputFormats lists every supported output format
func OutputFormats() []OutputFormat {
	return []OutputFormat{FormatConsole, FormatJSON, FormatYAML, FormatCSV}
}

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses an output format name case-insensitively; "yml"
// is accepted for YAML.
func ParseOutputFormat(s string) (OutputFormat, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "yml" {
		name = string(FormatYAML)
	}
	f := OutputFormat(name)
	if !f.IsValid() {
		return "", errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", s, nil).
			WithSuggestion("use one of: console, json, yaml, csv")
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format" yaml:"format"`

	// Detail level options
	IncludeBreakdown  bool `json:"include_breakdown" yaml:"include_breakdown"`
	IncludeCategories bool `json:"include_categories" yaml:"include_categories"`
	IncludeDuplicates bool `json:"include_duplicates" yaml:"include_duplicates"`
	IncludeParseStats bool `json:"include_parse_stats" yaml:"include_parse_stats"`

	// Console formatting options
	UseColors     bool `json:"use_colors" yaml:"use_colors"`
	TableMaxWidth int  `json:"table_max_width" yaml:"table_max_width"`
	// MaxItems caps category and duplicate lists on the console.
	MaxItems int `json:"max_items" yaml:"max_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" yaml:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeBreakdown:  true,
		IncludeCategories: true,
		IncludeDuplicates: true,
		IncludeParseStats: true,
		UseColors:         false,
		TableMaxWidth:     120,
		MaxItems:          10,
		CSVDelimiter:      ',',
		CSVHeaders:        true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", string(c.Format), nil).
			WithSuggestion("use one of: console, json, yaml, csv")
	}
	if c.TableMaxWidth < 50 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "table_max_width", c.TableMaxWidth, nil).
			WithSuggestion("table max width must be at least 50 characters")
	}
	if c.MaxItems < 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_items", c.MaxItems, nil)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "csv_delimiter", string(c.CSVDelimiter), nil)
	}
	return nil
}

// ReportGenerator renders analysis records in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders one analysis record to writer
func (rg *ReportGenerator) GenerateReport(record *analysis.Record, writer io.Writer) error {
	if record == nil {
		return errors.ValidationError(errors.CodeMissingField, "record", nil, nil)
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.withBuffer(writer, func(w *bufio.Writer) {
			rg.writeConsoleRecord(record, w)
		})
	case FormatJSON:
		return rg.encodeJSON(rg.recordDocument(record), writer)
	case FormatYAML:
		return rg.encodeYAML(rg.recordDocument(record), writer)
	case FormatCSV:
		return rg.writeCSV([]*analysis.Record{record}, writer)
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", string(rg.config.Format), nil)
	}
}

// GenerateBatchReport renders every successful analysis of a batch followed
// by the files that failed
func (rg *ReportGenerator) GenerateBatchReport(batch *analysis.BatchResult, writer io.Writer) error {
	if batch == nil {
		return errors.ValidationError(errors.CodeMissingField, "batch", nil, nil)
	}
	records := batch.Succeeded()

	switch rg.config.Format {
	case FormatConsole:
		return rg.withBuffer(writer, func(w *bufio.Writer) {
			for i, record := range records {
				if i > 0 {
					fmt.Fprintf(w, "%s\n\n", strings.Repeat("-", 60))
				}
				rg.writeConsoleRecord(record, w)
			}
			if len(batch.Failures) > 0 {
				fmt.Fprintf(w, "=== FAILED FILES (%d) ===\n", len(batch.Failures))
				for _, f := range batch.Failures {
					fmt.Fprintf(w, "  - %s: %v\n", f.Path, f.Err)
				}
			}
		})
	case FormatJSON, FormatYAML:
		docs := make([]map[string]interface{}, 0, len(records))
		for _, record := range records {
			docs = append(docs, rg.recordDocument(record))
		}
		failures := make([]map[string]interface{}, 0, len(batch.Failures))
		for _, f := range batch.Failures {
			failures = append(failures, failureDocument(f))
		}
		doc := map[string]interface{}{
			"analyses": docs,
			"failures": failures,
		}
		if rg.config.Format == FormatJSON {
			return rg.encodeJSON(doc, writer)
		}
		return rg.encodeYAML(doc, writer)
	case FormatCSV:
		return rg.writeCSV(records, writer)
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", string(rg.config.Format), nil)
	}
}

// HistoryEntry is one line of a history report
type HistoryEntry struct {
	ID           string    `json:"id" yaml:"id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	FileName     string    `json:"file_name" yaml:"file_name"`
	CompanyName  string    `json:"company_name,omitempty" yaml:"company_name,omitempty"`
	SourceFormat string    `json:"source_format" yaml:"source_format"`
	FinalScore   int       `json:"final_score" yaml:"final_score"`
	Tier         string    `json:"tier" yaml:"tier"`
}

func historyEntries(records []*analysis.Record) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryEntry{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt,
			FileName:     r.FileName,
			CompanyName:  r.CompanyName,
			SourceFormat: string(r.SourceFormat),
			FinalScore:   r.FinalScore,
			Tier:         string(r.TierInfo.Tier),
		})
	}
	return out
}

// GenerateHistoryReport renders one line per stored analysis, in the order given
func (rg *ReportGenerator) GenerateHistoryReport(records []*analysis.Record, writer io.Writer) error {
	entries := historyEntries(records)

	switch rg.config.Format {
	case FormatConsole:
		return rg.withBuffer(writer, func(w *bufio.Writer) {
			fmt.Fprintf(w, "STORED ANALYSES (%d)\n", len(entries))
			if len(entries) == 0 {
				return
			}
			fmt.Fprintf(w, "%-36s  %-20s  %5s  %-8s  %s\n", "ID", "CREATED", "SCORE", "TIER", "FILE")
			for _, e := range entries {
				fmt.Fprintf(w, "%-36s  %-20s  %5d  %-8s  %s\n",
					e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.FinalScore, e.Tier, e.FileName)
			}
		})
	case FormatJSON:
		return rg.encodeJSON(map[string]interface{}{"analyses": entries}, writer)
	case FormatYAML:
		return rg.encodeYAML(map[string]interface{}{"analyses": entries}, writer)
	case FormatCSV:
		cw := csv.NewWriter(writer)
		cw.Comma = rg.config.CSVDelimiter
		if rg.config.CSVHeaders {
			if err := cw.Write([]string{"ID", "Created_At", "File", "Company", "Source_Format", "Final_Score", "Tier"}); err != nil {
				return rg.writeError(err)
			}
		}
		for _, e := range entries {
			row := []string{
				e.ID,
				e.CreatedAt.Format(time.RFC3339),
				e.FileName,
				e.CompanyName,
				e.SourceFormat,
				strconv.Itoa(e.FinalScore),
				e.Tier,
			}
			if err := cw.Write(row); err != nil {
				return rg.writeError(err)
			}
		}
		cw.Flush()
		return rg.writeError(cw.Error())
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", string(rg.config.Format), nil)
	}
}

// withBuffer runs a console renderer over a buffered writer and reports the
// first write failure on flush
func (rg *ReportGenerator) withBuffer(writer io.Writer, render func(w *bufio.Writer)) error {
	w := bufio.NewWriter(writer)
	render(w)
	return rg.writeError(w.Flush())
}

func (rg *ReportGenerator) writeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to write report")
}

func (rg *ReportGenerator) encodeJSON(doc interface{}, writer io.Writer) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "json_encoding", err)
	}
	data = append(data, '\n')
	_, err = writer.Write(data)
	return rg.writeError(err)
}

func (rg *ReportGenerator) encodeYAML(doc interface{}, writer io.Writer) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "yaml_encoding", err)
	}
	_, err = writer.Write(data)
	return rg.writeError(err)
}

// recordDocument builds the structured form of a record, filtered by the
// detail options
func (rg *ReportGenerator) recordDocument(record *analysis.Record) map[string]interface{} {
	doc := map[string]interface{}{
		"id":             record.ID,
		"created_at":     record.CreatedAt,
		"file_name":      record.FileName,
		"source_format":  string(record.SourceFormat),
		"final_score":    record.FinalScore,
		"tier_info":      record.TierInfo,
		"policy_version": record.PolicyVersion,
		"summary": map[string]interface{}{
			"transaction_count": record.Summary.TransactionCount,
			"total_inflow":      record.Summary.TotalInflow,
			"total_outflow":     record.Summary.TotalOutflow,
			"net_flow":          record.Summary.NetFlow,
			"first_date":        record.Summary.FirstDate,
			"last_date":         record.Summary.LastDate,
			"period_days":       record.Summary.PeriodDays,
			"largest_outflow":   record.Summary.LargestOutflow,
			"average_outflow":   record.Summary.AverageOutflow,
		},
	}
	if record.CompanyName != "" {
		doc["company_name"] = record.CompanyName
	}
	if rg.config.IncludeBreakdown {
		doc["breakdown"] = record.Breakdown
	}
	if rg.config.IncludeCategories {
		doc["categories"] = record.Summary.Categories
	}
	if rg.config.IncludeDuplicates {
		doc["duplicates"] = record.Duplicates
	}
	if rg.config.IncludeParseStats {
		doc["parse"] = record.Parse
	}
	return doc
}

func failureDocument(f analysis.FileFailure) map[string]interface{} {
	doc := map[string]interface{}{
		"path":  f.Path,
		"error": f.Err.Error(),
	}
	if ee, ok := errors.AsEngineError(f.Err); ok {
		doc["category"] = string(ee.Category)
		doc["code"] = string(ee.Code)
	}
	return doc
}

// writeCSV writes one row per metric per record
func (rg *ReportGenerator) writeCSV(records []*analysis.Record, writer io.Writer) error {
	cw := csv.NewWriter(writer)
	cw.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Analysis_ID",
			"File",
			"Company",
			"Source_Format",
			"Final_Score",
			"Tier",
			"Metric",
			"Metric_Score",
			"Weight",
			"Contribution",
			"Detail",
		}
		if err := cw.Write(headers); err != nil {
			return rg.writeError(err)
		}
	}

	for _, record := range records {
		for _, m := range record.Breakdown {
			row := []string{
				record.ID,
				record.FileName,
				record.CompanyName,
				string(record.SourceFormat),
				strconv.Itoa(record.FinalScore),
				string(record.TierInfo.Tier),
				m.Name,
				strconv.FormatFloat(m.Score, 'f', 2, 64),
				strconv.FormatFloat(m.Weight, 'f', 2, 64),
				strconv.FormatFloat(m.Contribution, 'f', 2, 64),
				m.Detail,
			}
			if err := cw.Write(row); err != nil {
				return rg.writeError(err)
			}
		}
	}

	cw.Flush()
	return rg.writeError(cw.Error())
}

// Helper methods for console output formatting

func (rg *ReportGenerator) writeConsoleRecord(record *analysis.Record, w io.Writer) {
	fmt.Fprintf(w, "SPENDSCORE REPORT\n")
	if record.CompanyName != "" {
		fmt.Fprintf(w, "Company:   %s\n", record.CompanyName)
	}
	fmt.Fprintf(w, "File:      %s (%s)\n", record.FileName, record.SourceFormat)
	fmt.Fprintf(w, "Generated: %s\n", record.CreatedAt.Format(time.RFC3339))
	if record.ID != "" {
		fmt.Fprintf(w, "Analysis:  %s\n", record.ID)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "=== SCORE ===\n")
	rg.printScore(record, w)
	fmt.Fprintf(w, "\n")

	if rg.config.IncludeBreakdown && len(record.Breakdown) > 0 {
		fmt.Fprintf(w, "=== BREAKDOWN ===\n")
		rg.printBreakdown(record, w)
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "=== CASH FLOW ===\n")
	rg.printCashFlow(record, w)
	fmt.Fprintf(w, "\n")

	if rg.config.IncludeCategories && len(record.Summary.Categories) > 0 {
		fmt.Fprintf(w, "=== TOP CATEGORIES ===\n")
		rg.printCategories(record, w)
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludeDuplicates && len(record.Duplicates) > 0 {
		fmt.Fprintf(w, "=== POSSIBLE DUPLICATES ===\n")
		rg.printDuplicates(record, w)
		fmt.Fprintf(w, "\n")
	}

	if rg.config.IncludeParseStats {
		fmt.Fprintf(w, "=== PARSING ===\n")
		rg.printParseReport(record.Parse, w)
	}
}

func (rg *ReportGenerator) printScore(record *analysis.Record, w io.Writer) {
	tier := fmt.Sprintf("%s (%s)", record.TierInfo.Tier, record.TierInfo.Label)
	fmt.Fprintf(w, "SpendScore:   %s/100\n", rg.colorize(strconv.Itoa(record.FinalScore), record.TierInfo.Color))
	fmt.Fprintf(w, "Tier:         %s\n", rg.colorize(tier, record.TierInfo.Color))
	reward := "no"
	if record.TierInfo.GreenRewardEligible {
		reward = "yes"
	}
	fmt.Fprintf(w, "Green reward: %s\n", reward)
	fmt.Fprintf(w, "Policy:       %s\n", record.PolicyVersion)
}

func (rg *ReportGenerator) printBreakdown(record *analysis.Record, w io.Writer) {
	const fixed = 24 + 2 + 7 + 2 + 6 + 2 + 12 + 2
	detailWidth := rg.config.TableMaxWidth - fixed
	if detailWidth < 10 {
		detailWidth = 10
	}

	fmt.Fprintf(w, "%-24s  %7s  %6s  %12s  %s\n", "Metric", "Score", "Weight", "Contribution", "Detail")
	var total float64
	for _, m := range record.Breakdown {
		fmt.Fprintf(w, "%-24s  %7.2f  %6.2f  %12.2f  %s\n",
			m.Name, m.Score, m.Weight, m.Contribution, truncate(m.Detail, detailWidth))
		total += m.Contribution
	}
	fmt.Fprintf(w, "%-24s  %7s  %6s  %12.2f\n", "Total", "", "", total)
}

func (rg *ReportGenerator) printCashFlow(record *analysis.Record, w io.Writer) {
	s := record.Summary
	fmt.Fprintf(w, "Transactions:    %d (%d in, %d out)\n", s.TransactionCount, s.InflowCount, s.OutflowCount)
	fmt.Fprintf(w, "Total Inflow:    %s\n", s.TotalInflow.StringFixed(2))
	fmt.Fprintf(w, "Total Outflow:   %s\n", s.TotalOutflow.StringFixed(2))
	fmt.Fprintf(w, "Net Flow:        %s\n", s.NetFlow.StringFixed(2))
	fmt.Fprintf(w, "Largest Outflow: %s\n", s.LargestOutflow.StringFixed(2))
	fmt.Fprintf(w, "Average Outflow: %s\n", s.AverageOutflow.StringFixed(2))
	if !s.FirstDate.IsZero() {
		fmt.Fprintf(w, "Period:          %s to %s (%d days)\n",
			s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02"), s.PeriodDays)
	}
}

func (rg *ReportGenerator) printCategories(record *analysis.Record, w io.Writer) {
	categories := record.Summary.Categories
	for i, c := range categories {
		if i >= rg.config.MaxItems {
			fmt.Fprintf(w, "  ... and %d more\n", len(categories)-rg.config.MaxItems)
			break
		}
		share := 0.0
		if !record.Summary.TotalOutflow.IsZero() {
			share, _ = c.Outflow.Div(record.Summary.TotalOutflow).Mul(decimalHundred).Float64()
		}
		fmt.Fprintf(w, "  %d. %-24s out %12s (%5.1f%%)  in %12s  [%d]\n",
			i+1, c.Category, c.Outflow.StringFixed(2), share, c.Inflow.StringFixed(2), c.Count)
	}
}

func (rg *ReportGenerator) printDuplicates(record *analysis.Record, w io.Writer) {
	dups := record.Duplicates
	for i, d := range dups {
		if i >= rg.config.MaxItems {
			fmt.Fprintf(w, "  ... and %d more\n", len(dups)-rg.config.MaxItems)
			break
		}
		fmt.Fprintf(w, "  %s: %q x%d at %s, extra %s (%s to %s)\n",
			d.GroupID, d.Description, d.Occurrences, d.Amount.StringFixed(2), d.ExtraAmount.StringFixed(2),
			d.FirstDate.Format("2006-01-02"), d.LastDate.Format("2006-01-02"))
	}
}

func (rg *ReportGenerator) printParseReport(p analysis.ParseReport, w io.Writer) {
	fmt.Fprintf(w, "Rows Read:      %d\n", p.TotalRows)
	fmt.Fprintf(w, "Valid Rows:     %d\n", p.ValidRows)
	fmt.Fprintf(w, "Skipped Rows:   %d\n", p.SkippedRows)
	fmt.Fprintf(w, "Filtered Rows:  %d\n", p.FilteredRows)

	if len(p.SkipReasons) > 0 {
		reasons := make([]string, 0, len(p.SkipReasons))
		for reason := range p.SkipReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		fmt.Fprintf(w, "Skip Reasons:\n")
		for _, reason := range reasons {
			fmt.Fprintf(w, "  - %s: %d\n", reason, p.SkipReasons[reason])
		}
	}
	if len(p.SampleErrors) > 0 {
		fmt.Fprintf(w, "Sample Errors:\n")
		for _, msg := range p.SampleErrors {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
}

// colorize wraps text in a 24-bit ANSI color taken from a #RRGGBB tier color
func (rg *ReportGenerator) colorize(text, hex string) string {
	if !rg.config.UseColors {
		return text
	}
	r, g, b, ok := parseHexColor(hex)
	if !ok {
		return text
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s\033[0m", r, g, b, text)
}

func parseHexColor(hex string) (r, g, b uint8, ok bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// Config returns the current configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}
