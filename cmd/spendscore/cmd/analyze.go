package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/analysis"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/reporter"
	"spendscore-service/internal/scoring"
	"spendscore-service/internal/telemetry"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

func newAnalyzeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Normalize and score transaction exports",
		Long: `Analyze reads each export, detects its platform, normalizes every row and
computes the SpendScore with its five-metric breakdown. Rows with a bad date
or amount are skipped and counted; a file fails only when no row survives.

Each successful analysis is stored under --store-dir so that 'spendscore show'
can print it later. Several files are analyzed concurrently and one failing
file never stops the others.

Examples:
  # Score one export
  spendscore analyze quickbooks_export.csv

  # Force the layout and brand the report
  spendscore analyze export.csv --source-format wave --company "Acme Ltd"

  # Several files to JSON, with Prometheus metrics
  spendscore analyze q1.csv q2.csv -f json -o scores.json --metrics-file spendscore.prom

  # Do not keep the result
  spendscore analyze export.csv --no-store`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error { return validateAnalyzeFlags(v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runAnalyze(cmd, v, args) },
	}

	flags := cmd.Flags()
	flags.StringP("source-format", "s", "", "force a source layout: quickbooks, wave, revolut, xero, generic (default: detect)")
	flags.String("company", "", "company name shown on the report")
	flags.Bool("no-store", false, "do not persist the analysis")
	flags.IntP("concurrency", "c", 4, "maximum number of files analyzed at once")
	flags.String("metrics-file", "", "write Prometheus metrics in text format to this file")
	flags.Bool("progress", false, "log batch progress")
	flags.Bool("color", false, "color the console score by tier")
	flags.Int("max-items", 10, "maximum categories and duplicates listed on the console")

	bindFlags(v, flags, map[string]string{
		config.KeySourceFormat:   "source-format",
		config.KeyCompany:        "company",
		config.KeyStoreDisabled:  "no-store",
		config.KeyConcurrency:    "concurrency",
		config.KeyMetricsFile:    "metrics-file",
		config.KeyProgress:       "progress",
		config.KeyReportColors:   "color",
		config.KeyReportMaxItems: "max-items",
	})
	return cmd
}

func validateAnalyzeFlags(v *viper.Viper) error {
	if _, err := reporter.ParseOutputFormat(v.GetString(config.KeyOutputFormat)); err != nil {
		return err
	}
	return validateOutputPath(v)
}

func runAnalyze(cmd *cobra.Command, v *viper.Viper, files []string) error {
	log := logger.GetGlobalLogger().WithComponent("cli")
	op := logger.NewOperationLogger("analyze", log).WithField("files", len(files))

	normConfig, err := config.CreateNormalizerConfig(v)
	if err != nil {
		return err
	}
	policy, err := config.CreatePolicy(v)
	if err != nil {
		return err
	}
	analysisConfig, err := config.CreateAnalysisConfig(v)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(v, v.GetString(config.KeyOutputFormat))
	if err != nil {
		return err
	}

	norm, err := normalizer.New(normConfig)
	if err != nil {
		return err
	}
	engine, err := scoring.NewEngine(policy)
	if err != nil {
		return err
	}
	store, err := openStore(v)
	if err != nil {
		return err
	}
	service, err := analysis.NewService(analysisConfig, norm, engine, store)
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetrics()
	service.WithRecorder(metrics)

	company := v.GetString(config.KeyCompany)
	requests := make([]analysis.Request, len(files))
	for i, path := range files {
		requests[i] = analysis.Request{Path: path, CompanyName: company}
	}

	op.Step("analyzing")
	batch, runErr := service.AnalyzeFiles(cmd.Context(), requests)

	if path := v.GetString(config.KeyMetricsFile); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.WithError(err).Warn("Failed to write metrics file")
			runErr = multierr.Append(runErr, err)
		}
	}

	succeeded := batch.Succeeded()
	if len(succeeded) == 0 {
		op.Error(runErr, "No export could be analyzed")
		return runErr
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}
	out, closeOutput, err := openOutput(cmd, v)
	if err != nil {
		return multierr.Append(runErr, err)
	}

	op.Step("reporting")
	if len(files) == 1 {
		err = generator.GenerateReportSafely(batch.Records[0], out)
	} else {
		err = generator.GenerateBatchReportSafely(batch, out)
	}
	if closeErr := closeOutput(); err == nil && closeErr != nil {
		err = errors.FileError(errors.CodeFilePermission, v.GetString(config.KeyOutputFile), closeErr)
	}
	if err != nil {
		return multierr.Append(runErr, err)
	}

	if v.GetBool(config.KeyVerbose) {
		stderr := cmd.ErrOrStderr()
		fmt.Fprintf(stderr, "\nAnalyzed %d of %d files.\n", len(succeeded), len(files))
		for _, record := range succeeded {
			fmt.Fprintf(stderr, "  %s: %d/100 (%s), %d rows, %d skipped\n",
				record.FileName, record.FinalScore, record.TierInfo.Tier, record.Parse.ValidRows, record.Parse.SkippedRows)
		}
		if store != nil {
			fmt.Fprintf(stderr, "Results stored in %s\n", config.StoreDir(v))
		}
	}

	if runErr != nil {
		op.Warning(fmt.Sprintf("%d of %d files failed", len(files)-len(succeeded), len(files)))
		return runErr
	}
	op.Success("Analysis completed")
	return nil
}
