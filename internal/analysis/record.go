package analysis

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/scoring"
)

// Record is the stored outcome of analyzing one export. It carries the
// score and diagnostics but never the transaction rows.
type Record struct {
	ID            string                     `json:"id" yaml:"id"`
	CreatedAt     time.Time                  `json:"created_at" yaml:"created_at"`
	FileName      string                     `json:"file_name" yaml:"file_name"`
	CompanyName   string                     `json:"company_name,omitempty" yaml:"company_name,omitempty"`
	SourceFormat  models.SourceFormat        `json:"source_format" yaml:"source_format"`
	FinalScore    int                        `json:"final_score" yaml:"final_score"`
	TierInfo      scoring.TierInfo           `json:"tier_info" yaml:"tier_info"`
	Breakdown     []scoring.MetricScore      `json:"breakdown" yaml:"breakdown"`
	Summary       scoring.TransactionSummary `json:"summary" yaml:"summary"`
	Duplicates    []DuplicateSummary         `json:"duplicates" yaml:"duplicates"`
	PolicyVersion string                     `json:"policy_version" yaml:"policy_version"`
	Parse         ParseReport                `json:"parse" yaml:"parse"`
	DurationMS    int64                      `json:"duration_ms" yaml:"duration_ms"`
}

// DuplicateSummary describes a duplicate group without its rows
type DuplicateSummary struct {
	GroupID     string          `json:"group_id" yaml:"group_id"`
	Description string          `json:"description" yaml:"description"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Occurrences int             `json:"occurrences" yaml:"occurrences"`
	ExtraAmount decimal.Decimal `json:"extra_amount" yaml:"extra_amount"`
	FirstDate   time.Time       `json:"first_date" yaml:"first_date"`
	LastDate    time.Time       `json:"last_date" yaml:"last_date"`
	Reason      string          `json:"reason" yaml:"reason"`
}

// ParseReport is the normalizer's diagnostics for the file
type ParseReport struct {
	Format       models.SourceFormat `json:"format" yaml:"format"`
	TotalRows    int                 `json:"total_rows" yaml:"total_rows"`
	ValidRows    int                 `json:"valid_rows" yaml:"valid_rows"`
	SkippedRows  int                 `json:"skipped_rows" yaml:"skipped_rows"`
	FilteredRows int                 `json:"filtered_rows" yaml:"filtered_rows"`
	SkipReasons  map[string]int      `json:"skip_reasons,omitempty" yaml:"skip_reasons,omitempty"`
	SampleErrors []string            `json:"sample_errors,omitempty" yaml:"sample_errors,omitempty"`
}

func newParseReport(stats *normalizer.ParseStats, maxSamples int) ParseReport {
	if stats == nil {
		return ParseReport{}
	}
	report := ParseReport{
		Format:       stats.Format,
		TotalRows:    stats.TotalRows,
		ValidRows:    stats.ValidRows,
		SkippedRows:  stats.SkippedRows,
		FilteredRows: stats.FilteredRows,
	}
	if stats.HasSkips() {
		report.SkipReasons = stats.SkipReasons()
		report.SampleErrors = stats.SampleMessages(maxSamples)
	}
	return report
}

func summarizeDuplicates(groups []scoring.DuplicateGroup) []DuplicateSummary {
	out := make([]DuplicateSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, DuplicateSummary{
			GroupID:     g.GroupID,
			Description: g.Description,
			Amount:      g.Amount,
			Occurrences: g.Occurrences(),
			ExtraAmount: g.ExtraAmount,
			FirstDate:   g.Transactions[0].Date,
			LastDate:    g.Transactions[len(g.Transactions)-1].Date,
			Reason:      g.Reason,
		})
	}
	return out
}

func newRecord(id string, createdAt time.Time, req Request, result *scoring.ScoreResult, parse ParseReport) *Record {
	return &Record{
		ID:            id,
		CreatedAt:     createdAt.UTC(),
		FileName:      filepath.Base(req.Path),
		CompanyName:   req.CompanyName,
		SourceFormat:  parse.Format,
		FinalScore:    result.FinalScore,
		TierInfo:      result.TierInfo,
		Breakdown:     result.Breakdown,
		Summary:       result.Summary,
		Duplicates:    summarizeDuplicates(result.Duplicates),
		PolicyVersion: result.PolicyVersion,
		Parse:         parse,
	}
}

// Metric returns the breakdown entry for a metric name
func (r *Record) Metric(name string) (scoring.MetricScore, bool) {
	for _, m := range r.Breakdown {
		if m.Name == name {
			return m, true
		}
	}
	return scoring.MetricScore{}, false
}
