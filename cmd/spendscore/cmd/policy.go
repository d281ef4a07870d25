package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/reporter"
)

func newPolicyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the active scoring policy",
		Long: `Policy prints the scoring policy analyses would use: the policy version,
metric weights, tier bands and metric thresholds. The built-in policy is v1;
a config file can supply a different one under the scoring key, which must
then carry its own version.

Examples:
  spendscore policy
  spendscore policy -f json
  spendscore policy --config acme.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := reporter.ParseOutputFormat(v.GetString(config.KeyOutputFormat))
			if err != nil {
				return err
			}
			policy, err := config.CreatePolicy(v)
			if err != nil {
				return err
			}

			out, closeOutput, err := openOutput(cmd, v)
			if err != nil {
				return err
			}
			defer closeOutput()
			return writeDocument(out, format, policy)
		},
	}
}
