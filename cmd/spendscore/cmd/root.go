package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spendscore-service/cmd/spendscore/config"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// EnvPrefix prefixes every environment variable the CLI reads
const EnvPrefix = "SPENDSCORE"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCommand(viper.GetViper())

// NewRootCommand builds the command tree over v. Every flag is bound to a
// key of v so that a config file or SPENDSCORE_* environment variable can
// supply it instead.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "spendscore",
		Short: "Transaction export normalizer and SpendScore engine",
		Long: `SpendScore reads transaction exports from accounting platforms
(QuickBooks, Wave, Revolut, Xero or any CSV with date and amount columns),
normalizes them into one canonical shape and scores the business's spending
health from 0 to 100 with a Red, Yellow or Green tier.

Examples:
  spendscore analyze quickbooks_export.csv
  spendscore analyze jan.csv feb.csv --output-format json --output-file scores.json
  spendscore show
  spendscore detect export.csv
  spendscore sample --source-format xero --count 100 -o xero.csv`,
		Version:       getVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.StringP("output-format", "f", "console", "output format: console, json, yaml, csv")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")
	flags.String("store-dir", config.DefaultStoreDir, "directory holding stored analyses")

	bindFlags(v, flags, map[string]string{
		config.KeyVerbose:      "verbose",
		config.KeyLogLevel:     "log-level",
		config.KeyLogFormat:    "log-format",
		config.KeyLogFile:      "log-file",
		config.KeyOutputFormat: "output-format",
		config.KeyOutputFile:   "output-file",
		config.KeyStoreDir:     "store-dir",
	})

	root.AddCommand(
		newAnalyzeCmd(v),
		newShowCmd(v),
		newDetectCmd(v),
		newPolicyCmd(v),
		newFormatsCmd(v),
		newSampleCmd(v),
	)
	return root
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	return NewCLIErrorHandler(os.Stderr, viper.GetBool(config.KeyVerbose)).HandleError(err)
}

// bindFlags binds each viper key to the named flag
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

// initConfig reads the config file and environment, then installs the
// global logger.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("check that the config file exists and is valid YAML, TOML or JSON")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	logConfig, err := config.CreateLoggerConfig(v)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", logConfig.File, err)
	}
	logger.SetGlobalLogger(log)

	if cfgFile != "" {
		log.WithField("config_file", v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
