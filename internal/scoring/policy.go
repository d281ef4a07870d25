// Package scoring computes the SpendScore of a set of canonical transactions.
//
// Five sub-metrics, each on a 0-100 scale where higher is healthier, are
// combined with the weights of a versioned Policy:
//   - spending_consistency: how even outflow sizes are
//   - category_concentration: how spread outflows are across categories
//   - frequency_regularity: how steady weekly transaction counts are
//   - waste_indicators: how much outflow is lost to likely duplicates
//   - net_flow_health: how well inflow covers outflow
//
// The composite is classified into a tier (Red, Yellow, Green) and a business
// is eligible for the green reward when it reaches the top tier with a net
// flow score of at least Policy.GreenRewardMinNetFlow.
//
// Example usage:
//
//	engine, err := scoring.NewEngine(scoring.DefaultPolicy())
//	result, err := engine.Score(transactions)
//	fmt.Println(result.FinalScore, result.TierInfo.Label)
package scoring

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"spendscore-service/pkg/errors"
)

// DefaultPolicyVersion identifies the built-in calibration. Any change to
// weights, tiers or thresholds must ship under a new version.
const DefaultPolicyVersion = "v1"

// Metric names as they appear in a breakdown
const (
	MetricConsistency   = "spending_consistency"
	MetricConcentration = "category_concentration"
	MetricFrequency     = "frequency_regularity"
	MetricWaste         = "waste_indicators"
	MetricNetFlow       = "net_flow_health"
)

// MetricNames lists the sub-metrics in breakdown order
var MetricNames = []string{
	MetricConsistency,
	MetricConcentration,
	MetricFrequency,
	MetricWaste,
	MetricNetFlow,
}

// Tier is a coarse classification of a final score
type Tier string

const (
	TierRed    Tier = "Red"
	TierYellow Tier = "Yellow"
	TierGreen  Tier = "Green"
)

// TierBand is one row of the tier table. A band covers scores from Min up
// to the next band's Min; the last band runs to 100 inclusive.
type TierBand struct {
	Tier  Tier   `json:"tier" yaml:"tier" mapstructure:"tier"`
	Min   int    `json:"min" yaml:"min" mapstructure:"min"`
	Label string `json:"label" yaml:"label" mapstructure:"label"`
	Color string `json:"color" yaml:"color" mapstructure:"color"`
}

// Weights holds the relative importance of each sub-metric
type Weights struct {
	Consistency   float64 `json:"spending_consistency" yaml:"spending_consistency" mapstructure:"spending_consistency"`
	Concentration float64 `json:"category_concentration" yaml:"category_concentration" mapstructure:"category_concentration"`
	Frequency     float64 `json:"frequency_regularity" yaml:"frequency_regularity" mapstructure:"frequency_regularity"`
	Waste         float64 `json:"waste_indicators" yaml:"waste_indicators" mapstructure:"waste_indicators"`
	NetFlow       float64 `json:"net_flow_health" yaml:"net_flow_health" mapstructure:"net_flow_health"`
}

// ByMetric returns the weight of a named metric
func (w Weights) ByMetric(name string) float64 {
	switch name {
	case MetricConsistency:
		return w.Consistency
	case MetricConcentration:
		return w.Concentration
	case MetricFrequency:
		return w.Frequency
	case MetricWaste:
		return w.Waste
	case MetricNetFlow:
		return w.NetFlow
	default:
		return 0
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Consistency + w.Concentration + w.Frequency + w.Waste + w.NetFlow
}

// Validate checks that every weight is in [0,1] and that they sum to 1
func (w Weights) Validate() error {
	for _, name := range MetricNames {
		v := w.ByMetric(name)
		if v < 0 || v > 1 || math.IsNaN(v) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.weights."+name, v, nil)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-9 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.weights", fmt.Sprintf("sum %.6f", sum), nil).
			WithSuggestion("weights must sum to 1.0")
	}
	return nil
}

// Policy is the complete, versioned calibration of the engine
type Policy struct {
	Version string     `json:"version" yaml:"version" mapstructure:"version"`
	Weights Weights    `json:"weights" yaml:"weights" mapstructure:"weights"`
	Tiers   []TierBand `json:"tiers" yaml:"tiers" mapstructure:"tiers"`

	// TargetCategories is the effective category count that earns a full
	// concentration score.
	TargetCategories float64 `json:"target_categories" yaml:"target_categories" mapstructure:"target_categories"`
	// FrequencyBucketDays is the width of a frequency bucket.
	FrequencyBucketDays int `json:"frequency_bucket_days" yaml:"frequency_bucket_days" mapstructure:"frequency_bucket_days"`
	// DuplicateSimilarity is the minimum description similarity in (0,1]
	// for two outflows to count as duplicates.
	DuplicateSimilarity float64 `json:"duplicate_similarity" yaml:"duplicate_similarity" mapstructure:"duplicate_similarity"`
	// DuplicateWindowDays is the largest date gap between duplicates.
	DuplicateWindowDays int `json:"duplicate_window_days" yaml:"duplicate_window_days" mapstructure:"duplicate_window_days"`
	// MaxWasteRatio is the duplicated share of outflow that scores zero.
	MaxWasteRatio float64 `json:"max_waste_ratio" yaml:"max_waste_ratio" mapstructure:"max_waste_ratio"`
	// NetFlowTargetRatio is the inflow/outflow ratio that scores 100.
	NetFlowTargetRatio float64 `json:"net_flow_target_ratio" yaml:"net_flow_target_ratio" mapstructure:"net_flow_target_ratio"`
	// GreenRewardMinNetFlow is the net flow sub-score a top-tier result
	// also needs for green reward eligibility.
	GreenRewardMinNetFlow float64 `json:"green_reward_min_net_flow" yaml:"green_reward_min_net_flow" mapstructure:"green_reward_min_net_flow"`
}

// DefaultPolicy returns the built-in v1 calibration
func DefaultPolicy() *Policy {
	return &Policy{
		Version: DefaultPolicyVersion,
		Weights: Weights{
			Consistency:   0.20,
			Concentration: 0.20,
			Frequency:     0.15,
			Waste:         0.20,
			NetFlow:       0.25,
		},
		Tiers: []TierBand{
			{Tier: TierRed, Min: 0, Label: "Needs Attention", Color: "#DC3545"},
			{Tier: TierYellow, Min: 60, Label: "Fair", Color: "#FFC107"},
			{Tier: TierGreen, Min: 80, Label: "Excellent", Color: "#28A745"},
		},
		TargetCategories:      5,
		FrequencyBucketDays:   7,
		DuplicateSimilarity:   0.8,
		DuplicateWindowDays:   3,
		MaxWasteRatio:         0.25,
		NetFlowTargetRatio:    1.1,
		GreenRewardMinNetFlow: 70,
	}
}

// Validate checks the policy for internal consistency. A policy that claims
// the built-in version must match the built-in calibration exactly.
func (p *Policy) Validate() error {
	if strings.TrimSpace(p.Version) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "scoring.version", "", nil)
	}

	if err := p.Weights.Validate(); err != nil {
		return err
	}

	if err := validateTiers(p.Tiers); err != nil {
		return err
	}

	positive := []struct {
		name  string
		value float64
	}{
		{"scoring.target_categories", p.TargetCategories},
		{"scoring.frequency_bucket_days", float64(p.FrequencyBucketDays)},
		{"scoring.duplicate_similarity", p.DuplicateSimilarity},
		{"scoring.duplicate_window_days", float64(p.DuplicateWindowDays)},
		{"scoring.max_waste_ratio", p.MaxWasteRatio},
		{"scoring.net_flow_target_ratio", p.NetFlowTargetRatio},
		{"scoring.green_reward_min_net_flow", p.GreenRewardMinNetFlow},
	}
	for _, s := range positive {
		if !(s.value > 0) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, s.name, s.value, nil).
				WithSuggestion("this threshold must be greater than zero")
		}
	}

	if p.TargetCategories <= 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.target_categories", p.TargetCategories, nil).
			WithSuggestion("target categories must be greater than 1")
	}
	if p.DuplicateSimilarity > 1 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "scoring.duplicate_similarity", p.DuplicateSimilarity, nil).
			WithSuggestion("similarity is a ratio in (0, 1]")
	}
	if p.GreenRewardMinNetFlow > 100 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.green_reward_min_net_flow", p.GreenRewardMinNetFlow, nil).
			WithSuggestion("the net flow sub-score never exceeds 100")
	}

	if p.Version == DefaultPolicyVersion && !reflect.DeepEqual(p, DefaultPolicy()) {
		return errors.ConfigurationError(errors.CodeConfigConflict, "scoring.version", p.Version, nil).
			WithContext("reason", "parameters differ from the built-in "+DefaultPolicyVersion+" calibration")
	}

	return nil
}

func validateTiers(tiers []TierBand) error {
	if len(tiers) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "scoring.tiers", nil, nil)
	}
	if tiers[0].Min != 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.tiers", fmt.Sprintf("first tier starts at %d", tiers[0].Min), nil).
			WithSuggestion("the lowest tier must start at 0")
	}
	seen := make(map[Tier]bool, len(tiers))
	for i, band := range tiers {
		if band.Tier == "" || seen[band.Tier] {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.tiers", fmt.Sprintf("tier %d has a missing or repeated name", i), nil)
		}
		seen[band.Tier] = true
		if band.Min > 100 {
			return errors.ConfigurationError(errors.CodeOutOfRange, "scoring.tiers", fmt.Sprintf("tier %s starts at %d", band.Tier, band.Min), nil)
		}
		if i > 0 && band.Min <= tiers[i-1].Min {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "scoring.tiers", fmt.Sprintf("tier %s is out of order", band.Tier), nil).
				WithSuggestion("list tiers in ascending order of their minimum score")
		}
	}
	return nil
}

// TierFor returns the band a final score falls into
func (p *Policy) TierFor(score int) TierBand {
	band := p.Tiers[0]
	for _, b := range p.Tiers[1:] {
		if score >= b.Min {
			band = b
		}
	}
	return band
}

// TopTier returns the highest band
func (p *Policy) TopTier() TierBand {
	return p.Tiers[len(p.Tiers)-1]
}

// Clone creates a deep copy of the policy
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Tiers = append([]TierBand(nil), p.Tiers...)
	return &clone
}
