package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/reporter"
)

// detectReport is what detect prints for a file
type detectReport struct {
	File        string                `json:"file" yaml:"file"`
	Format      models.SourceFormat   `json:"format" yaml:"format"`
	Name        string                `json:"name" yaml:"name"`
	Forced      bool                  `json:"forced" yaml:"forced"`
	Candidates  []models.SourceFormat `json:"candidates" yaml:"candidates"`
	Headers     []string              `json:"headers" yaml:"headers"`
	Columns     normalizer.ColumnMap  `json:"columns" yaml:"columns"`
	AmountRule  string                `json:"amount_rule" yaml:"amount_rule"`
	DateLayouts []string              `json:"date_layouts" yaml:"date_layouts"`
}

func newDetectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE",
		Short: "Show which platform layout an export matches",
		Long: `Detect reads the header of an export and prints the layout it matches, the
other layouts it could have matched and how its columns map onto the
canonical transaction. Nothing is scored or stored.

Examples:
  spendscore detect export.csv
  spendscore detect export.csv -f json`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFileExists(args[0], "export file"); err != nil {
				return err
			}
			return validateOutputPath(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error { return runDetect(cmd, v, args[0]) },
	}
}

func runDetect(cmd *cobra.Command, v *viper.Viper, path string) error {
	format, err := reporter.ParseOutputFormat(v.GetString(config.KeyOutputFormat))
	if err != nil {
		return err
	}
	normConfig, err := config.CreateNormalizerConfig(v)
	if err != nil {
		return err
	}
	norm, err := normalizer.New(normConfig)
	if err != nil {
		return err
	}

	detection, headers, err := norm.DetectFile(afero.NewOsFs(), path)
	if err != nil {
		return err
	}

	layout := detection.Layout
	report := detectReport{
		File:        path,
		Format:      layout.Format,
		Name:        layout.Name,
		Forced:      detection.Forced,
		Candidates:  detection.Candidates,
		Headers:     headers,
		Columns:     layout.Columns,
		AmountRule:  layout.AmountRule.String(),
		DateLayouts: layout.DateLayouts,
	}

	out, closeOutput, err := openOutput(cmd, v)
	if err != nil {
		return err
	}
	defer closeOutput()

	if format == reporter.FormatConsole {
		return writeDetectConsole(out, report)
	}
	return writeDocument(out, format, report)
}

func writeDetectConsole(w io.Writer, r detectReport) error {
	candidates := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		candidates[i] = string(c)
	}
	forced := "no"
	if r.Forced {
		forced = "yes"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", r.File)
	fmt.Fprintf(tw, "Format:\t%s (%s)\n", r.Format, r.Name)
	fmt.Fprintf(tw, "Forced:\t%s\n", forced)
	fmt.Fprintf(tw, "Candidates:\t%s\n", strings.Join(candidates, ", "))
	fmt.Fprintf(tw, "Amount rule:\t%s\n", r.AmountRule)
	fmt.Fprintf(tw, "Date layouts:\t%s\n", strings.Join(r.DateLayouts, ", "))
	fmt.Fprintf(tw, "\nColumns:\t\n")
	for _, pair := range columnPairs(r.Columns) {
		fmt.Fprintf(tw, "  %s\t%s\n", pair[0], pair[1])
	}
	return tw.Flush()
}

// columnPairs lists the mapped fields of m in a fixed order
func columnPairs(m normalizer.ColumnMap) [][2]string {
	all := [][2]string{
		{"date", m.Date},
		{"date (fallback)", m.DateAlt},
		{"description", m.Description},
		{"vendor", m.Vendor},
		{"amount", m.Amount},
		{"debit", m.Debit},
		{"credit", m.Credit},
		{"fee", m.Fee},
		{"category", m.Category},
		{"category (fallback)", m.CategoryAlt},
		{"type", m.Type},
		{"state", m.State},
	}
	out := all[:0]
	for _, pair := range all {
		if pair[1] != "" {
			out = append(out, pair)
		}
	}
	return out
}
