package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/reporter"
)

// formatInfo describes one supported layout
type formatInfo struct {
	Format       models.SourceFormat `json:"format" yaml:"format"`
	Name         string              `json:"name" yaml:"name"`
	Header       []string            `json:"header" yaml:"header"`
	Signature    []string            `json:"signature,omitempty" yaml:"signature,omitempty"`
	AmountRule   string              `json:"amount_rule" yaml:"amount_rule"`
	DateLayouts  []string            `json:"date_layouts" yaml:"date_layouts"`
	AcceptStates []string            `json:"accept_states,omitempty" yaml:"accept_states,omitempty"`
}

func newFormatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the supported export layouts",
		Long: `Formats lists every export layout the normalizer understands, in the order
used to break detection ties, with the header a native export carries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := reporter.ParseOutputFormat(v.GetString(config.KeyOutputFormat))
			if err != nil {
				return err
			}

			layouts := normalizer.Layouts()
			infos := make([]formatInfo, 0, len(layouts))
			for _, l := range layouts {
				infos = append(infos, formatInfo{
					Format:       l.Format,
					Name:         l.Name,
					Header:       l.Header,
					Signature:    l.Signature,
					AmountRule:   l.AmountRule.String(),
					DateLayouts:  l.DateLayouts,
					AcceptStates: l.AcceptStates,
				})
			}

			out, closeOutput, err := openOutput(cmd, v)
			if err != nil {
				return err
			}
			defer closeOutput()

			if format != reporter.FormatConsole {
				return writeDocument(out, format, map[string]interface{}{"formats": infos})
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tNAME\tAMOUNTS\tHEADER")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Format, info.Name, info.AmountRule, strings.Join(info.Header, ", "))
			}
			return tw.Flush()
		},
	}
}
