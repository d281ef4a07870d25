package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/samples"
	"spendscore-service/pkg/logger"
)

func newSampleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a deterministic sample export",
		Long: `Sample writes a synthetic export in the native layout of a platform. The
same seed always produces the same file, and every row normalizes back
without skips, so samples make convenient demo and test inputs.

Examples:
  spendscore sample --source-format quickbooks --count 200 -o qb.csv
  spendscore sample --source-format revolut --seed 7 --duplicate-rate 0.1`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error { return validateOutputPath(v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runSample(cmd, v) },
	}

	defaults := samples.DefaultConfig()
	flags := cmd.Flags()
	flags.StringP("source-format", "s", string(defaults.Format), "layout to generate: quickbooks, wave, revolut, xero, generic")
	flags.IntP("count", "n", defaults.Count, "number of rows")
	flags.Int64("seed", defaults.Seed, "random seed")
	flags.String("start-date", defaults.StartDate.Format("2006-01-02"), "date of the first row (YYYY-MM-DD)")
	flags.Int("span-days", defaults.SpanDays, "number of days the rows cover")
	flags.Float64("inflow-rate", defaults.InflowRate, "share of rows that are money in")
	flags.Float64("duplicate-rate", defaults.DuplicateRate, "chance an outflow is charged twice")

	bindFlags(v, flags, map[string]string{
		config.KeySampleFormat:        "source-format",
		config.KeySampleCount:         "count",
		config.KeySampleSeed:          "seed",
		config.KeySampleStartDate:     "start-date",
		config.KeySampleSpanDays:      "span-days",
		config.KeySampleInflowRate:    "inflow-rate",
		config.KeySampleDuplicateRate: "duplicate-rate",
	})
	return cmd
}

func runSample(cmd *cobra.Command, v *viper.Viper) error {
	sampleConfig, err := config.CreateSampleConfig(v)
	if err != nil {
		return err
	}
	sample, err := samples.Generate(sampleConfig)
	if err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli").WithFields(logger.Fields{
		"format": string(sample.Format),
		"rows":   len(sample.Rows),
		"seed":   sampleConfig.Seed,
	})

	if path := v.GetString(config.KeyOutputFile); path != "" {
		if err := sample.WriteFile(afero.NewOsFs(), path); err != nil {
			return err
		}
		log.WithField("output", path).Info("Sample export written")
		return nil
	}

	if err := sample.WriteCSV(cmd.OutOrStdout()); err != nil {
		return err
	}
	log.Debug("Sample export written to stdout")
	return nil
}
