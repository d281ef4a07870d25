// Package config turns viper state into the configuration structs of the
// normalizer, scoring engine, analysis service, reporter and sample
// generator. Every factory starts from the package default and overrides
// only the keys that were set by a flag, the environment or a config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"spendscore-service/internal/analysis"
	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/reporter"
	"spendscore-service/internal/samples"
	"spendscore-service/internal/scoring"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// Keys shared between the commands and the factories
const (
	KeyVerbose   = "verbose"
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"

	KeyOutputFormat = "output.format"
	KeyOutputFile   = "output.file"

	KeyStoreDir      = "store.dir"
	KeyStoreDisabled = "store.disabled"
	KeyMetricsFile   = "metrics.file"
	KeyCompany       = "analyze.company"

	KeySourceFormat    = "normalizer.format"
	KeyDelimiter       = "normalizer.delimiter"
	KeySampleRows      = "normalizer.sample_rows"
	KeyMaxErrorSamples = "normalizer.max_error_samples"

	KeyConcurrency     = "analysis.max_concurrent_files"
	KeyProgress        = "analysis.progress_reporting"
	KeyMaxSampleErrors = "analysis.max_sample_errors"

	KeyReportColors     = "report.colors"
	KeyReportMaxItems   = "report.max_items"
	KeyReportWidth      = "report.width"
	KeyReportBreakdown  = "report.include_breakdown"
	KeyReportCategories = "report.include_categories"
	KeyReportDuplicates = "report.include_duplicates"
	KeyReportParseStats = "report.include_parse_stats"

	KeySampleFormat        = "sample.format"
	KeySampleCount         = "sample.count"
	KeySampleSeed          = "sample.seed"
	KeySampleStartDate     = "sample.start_date"
	KeySampleSpanDays      = "sample.span_days"
	KeySampleInflowRate    = "sample.inflow_rate"
	KeySampleDuplicateRate = "sample.duplicate_rate"
)

// DefaultStoreDir is where analyses are kept when no store directory is set
const DefaultStoreDir = ".spendscore"

// CreateLoggerConfig creates the logger configuration. Verbose forces the
// debug level.
func CreateLoggerConfig(v *viper.Viper) (*logger.Config, error) {
	config := logger.DefaultConfig()

	if err := setString(v, KeyLogLevel, func(s string) { config.Level = logger.Level(strings.ToLower(s)) }); err != nil {
		return nil, err
	}
	if err := setString(v, KeyLogFormat, func(s string) { config.Format = logger.Format(strings.ToLower(s)) }); err != nil {
		return nil, err
	}
	if err := setString(v, KeyLogFile, func(s string) {
		if s != "" {
			config.Output = logger.FileOutput
			config.File = s
		}
	}); err != nil {
		return nil, err
	}
	if v.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", string(config.Level), err)
	}
	return config, nil
}

// CreateNormalizerConfig creates the normalizer configuration
func CreateNormalizerConfig(v *viper.Viper) (*normalizer.Config, error) {
	config := normalizer.DefaultConfig()

	if err := setString(v, KeySourceFormat, func(s string) { config.Format = models.SourceFormat(s) }); err != nil {
		return nil, err
	}
	if config.Format != "" {
		format, err := models.ParseSourceFormat(string(config.Format))
		if err != nil {
			return nil, errors.UnknownFormatNameError(string(config.Format))
		}
		config.Format = format
	}

	var delimiterErr error
	if err := setString(v, KeyDelimiter, func(s string) {
		runes := []rune(s)
		if s == `\t` || s == "tab" {
			runes = []rune{'\t'}
		}
		if len(runes) != 1 {
			delimiterErr = errors.ConfigurationError(errors.CodeInvalidConfig, KeyDelimiter, s, nil).
				WithSuggestion("the delimiter must be a single character")
			return
		}
		config.Delimiter = runes[0]
	}); err != nil {
		return nil, err
	}
	if delimiterErr != nil {
		return nil, delimiterErr
	}

	if err := setInt(v, KeySampleRows, &config.SampleRows); err != nil {
		return nil, err
	}
	if err := setInt(v, KeyMaxErrorSamples, &config.MaxErrorSamples); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreatePolicy creates the scoring policy. Without any scoring.* keys this
// is the built-in calibration; overriding a parameter requires a version
// other than the built-in one.
func CreatePolicy(v *viper.Viper) (*scoring.Policy, error) {
	policy := scoring.DefaultPolicy()

	if err := setString(v, "scoring.version", func(s string) { policy.Version = s }); err != nil {
		return nil, err
	}

	weights := []struct {
		key string
		dst *float64
	}{
		{"scoring.weights." + scoring.MetricConsistency, &policy.Weights.Consistency},
		{"scoring.weights." + scoring.MetricConcentration, &policy.Weights.Concentration},
		{"scoring.weights." + scoring.MetricFrequency, &policy.Weights.Frequency},
		{"scoring.weights." + scoring.MetricWaste, &policy.Weights.Waste},
		{"scoring.weights." + scoring.MetricNetFlow, &policy.Weights.NetFlow},
		{"scoring.target_categories", &policy.TargetCategories},
		{"scoring.duplicate_similarity", &policy.DuplicateSimilarity},
		{"scoring.max_waste_ratio", &policy.MaxWasteRatio},
		{"scoring.net_flow_target_ratio", &policy.NetFlowTargetRatio},
		{"scoring.green_reward_min_net_flow", &policy.GreenRewardMinNetFlow},
	}
	for _, w := range weights {
		if err := setFloat(v, w.key, w.dst); err != nil {
			return nil, err
		}
	}
	if err := setInt(v, "scoring.frequency_bucket_days", &policy.FrequencyBucketDays); err != nil {
		return nil, err
	}
	if err := setInt(v, "scoring.duplicate_window_days", &policy.DuplicateWindowDays); err != nil {
		return nil, err
	}

	if v.IsSet("scoring.tiers") {
		tiers, err := decodeTiers(v.Get("scoring.tiers"))
		if err != nil {
			return nil, err
		}
		policy.Tiers = tiers
	}

	if err := policy.Validate(); err != nil {
		if ee, ok := errors.AsEngineError(err); ok && ee.Code == errors.CodeConfigConflict {
			return nil, ee.WithSuggestion("set scoring.version to a new name when changing scoring parameters")
		}
		return nil, err
	}
	return policy, nil
}

// decodeTiers reads a list of {tier, min, label, color} maps
func decodeTiers(raw interface{}) ([]scoring.TierBand, error) {
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.tiers", raw, err).
			WithSuggestion("tiers must be a list of {tier, min, label, color} entries")
	}

	tiers := make([]scoring.TierBand, 0, len(items))
	for i, item := range items {
		fields, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("scoring.tiers[%d]", i), item, err)
		}
		floor, err := cast.ToIntE(fields["min"])
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("scoring.tiers[%d].min", i), fields["min"], err)
		}
		tiers = append(tiers, scoring.TierBand{
			Tier:  scoring.Tier(cast.ToString(fields["tier"])),
			Min:   floor,
			Label: cast.ToString(fields["label"]),
			Color: cast.ToString(fields["color"]),
		})
	}
	return tiers, nil
}

// CreateAnalysisConfig creates the analysis service configuration
func CreateAnalysisConfig(v *viper.Viper) (*analysis.Config, error) {
	config := analysis.DefaultConfig()

	if err := setInt(v, KeyConcurrency, &config.MaxConcurrentFiles); err != nil {
		return nil, err
	}
	if err := setBool(v, KeyProgress, &config.ProgressReporting); err != nil {
		return nil, err
	}
	if err := setInt(v, KeyMaxSampleErrors, &config.MaxSampleErrors); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the output format.
// Structured formats keep every section; the console gets colors only when
// asked for.
func CreateReportConfig(v *viper.Viper, format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	parsed, err := reporter.ParseOutputFormat(format)
	if err != nil {
		return nil, err
	}
	config.Format = parsed

	if parsed == reporter.FormatConsole {
		if err := setBool(v, KeyReportColors, &config.UseColors); err != nil {
			return nil, err
		}
	}

	toggles := []struct {
		key string
		dst *bool
	}{
		{KeyReportBreakdown, &config.IncludeBreakdown},
		{KeyReportCategories, &config.IncludeCategories},
		{KeyReportDuplicates, &config.IncludeDuplicates},
		{KeyReportParseStats, &config.IncludeParseStats},
	}
	for _, t := range toggles {
		if err := setBool(v, t.key, t.dst); err != nil {
			return nil, err
		}
	}
	if err := setInt(v, KeyReportMaxItems, &config.MaxItems); err != nil {
		return nil, err
	}
	if err := setInt(v, KeyReportWidth, &config.TableMaxWidth); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateSampleConfig creates the sample generator configuration
func CreateSampleConfig(v *viper.Viper) (*samples.Config, error) {
	config := samples.DefaultConfig()

	if err := setString(v, KeySampleFormat, func(s string) { config.Format = models.SourceFormat(s) }); err != nil {
		return nil, err
	}
	format, err := models.ParseSourceFormat(string(config.Format))
	if err != nil {
		return nil, errors.UnknownFormatNameError(string(config.Format))
	}
	config.Format = format

	if err := setInt(v, KeySampleCount, &config.Count); err != nil {
		return nil, err
	}
	if err := setInt(v, KeySampleSpanDays, &config.SpanDays); err != nil {
		return nil, err
	}
	if v.IsSet(KeySampleSeed) {
		seed, err := cast.ToInt64E(v.Get(KeySampleSeed))
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeySampleSeed, v.Get(KeySampleSeed), err)
		}
		config.Seed = seed
	}
	if v.IsSet(KeySampleStartDate) {
		start, err := cast.ToTimeInDefaultLocationE(v.Get(KeySampleStartDate), time.UTC)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeySampleStartDate, v.Get(KeySampleStartDate), err).
				WithSuggestion("use a date like 2024-01-31")
		}
		config.StartDate = start
	}
	if err := setFloat(v, KeySampleInflowRate, &config.InflowRate); err != nil {
		return nil, err
	}
	if err := setFloat(v, KeySampleDuplicateRate, &config.DuplicateRate); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// StoreDir returns the store directory, or "" when persistence is disabled
func StoreDir(v *viper.Viper) string {
	if v.GetBool(KeyStoreDisabled) {
		return ""
	}
	if dir := strings.TrimSpace(v.GetString(KeyStoreDir)); dir != "" {
		return dir
	}
	return DefaultStoreDir
}

func setString(v *viper.Viper, key string, apply func(string)) error {
	if !v.IsSet(key) {
		return nil
	}
	s, err := cast.ToStringE(v.Get(key))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, key, v.Get(key), err)
	}
	apply(strings.TrimSpace(s))
	return nil
}

func setInt(v *viper.Viper, key string, dst *int) error {
	if !v.IsSet(key) {
		return nil
	}
	n, err := cast.ToIntE(v.Get(key))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, key, v.Get(key), err)
	}
	*dst = n
	return nil
}

func setFloat(v *viper.Viper, key string, dst *float64) error {
	if !v.IsSet(key) {
		return nil
	}
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, key, v.Get(key), err)
	}
	*dst = f
	return nil
}

func setBool(v *viper.Viper, key string, dst *bool) error {
	if !v.IsSet(key) {
		return nil
	}
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, key, v.Get(key), err)
	}
	*dst = b
	return nil
}
