package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/analysis"
	"spendscore-service/internal/reporter"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

func newShowCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [ID]",
		Short: "Print a stored analysis",
		Long: `Show prints the most recent stored analysis, or the one with the given ID,
in any report format. With --list it prints one line per stored analysis,
newest first.

Examples:
  spendscore show
  spendscore show 3f2b8c1e-8a4d-4f6e-9a51-0c7d2e4b9f10 -f json
  spendscore show --list`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error { return validateOutputPath(v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runShow(cmd, v, args) },
	}
	cmd.Flags().Bool("list", false, "list stored analyses instead of printing one")
	return cmd
}

func runShow(cmd *cobra.Command, v *viper.Viper, args []string) error {
	ctx := cmd.Context()
	list, _ := cmd.Flags().GetBool("list")
	if list && len(args) > 0 {
		return errors.ConfigurationError(errors.CodeConfigConflict, "list", args[0], nil).
			WithSuggestion("pass either an ID or --list, not both")
	}

	store, err := openStore(v)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.ConfigurationError(errors.CodeConfigConflict, config.KeyStoreDisabled, true, nil).
			WithSuggestion("show reads stored analyses; enable the store to use it")
	}

	reportConfig, err := config.CreateReportConfig(v, v.GetString(config.KeyOutputFormat))
	if err != nil {
		return err
	}
	log := logger.GetGlobalLogger().WithComponent("cli")
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	var (
		records []*analysis.Record
		record  *analysis.Record
	)
	switch {
	case list:
		records, err = store.List(ctx)
	case len(args) == 1:
		record, err = store.Get(ctx, args[0])
	default:
		record, err = store.Latest(ctx)
	}
	if err != nil {
		if errors.IsNotFound(err) && len(args) == 0 {
			if ee, ok := errors.AsEngineError(err); ok {
				return ee.WithSuggestion("run 'spendscore analyze FILE' first")
			}
		}
		return err
	}

	out, closeOutput, err := openOutput(cmd, v)
	if err != nil {
		return err
	}
	defer closeOutput()

	if list {
		return generator.GenerateHistoryReport(records, out)
	}
	return generator.GenerateReportSafely(record, out)
}
