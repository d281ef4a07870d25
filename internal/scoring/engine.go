package scoring

import (
	"fmt"
	"math"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// MetricScore is one line of the breakdown
type MetricScore struct {
	Name         string  `json:"name" yaml:"name"`
	Score        float64 `json:"score" yaml:"score"`
	Weight       float64 `json:"weight" yaml:"weight"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
	Detail       string  `json:"detail" yaml:"detail"`
}

// TierInfo classifies a final score
type TierInfo struct {
	Tier                Tier   `json:"tier" yaml:"tier"`
	Label               string `json:"label" yaml:"label"`
	Color               string `json:"color" yaml:"color"`
	GreenRewardEligible bool   `json:"green_reward_eligible" yaml:"green_reward_eligible"`
}

// ScoreResult is the outcome of scoring one transaction set
type ScoreResult struct {
	FinalScore    int                `json:"final_score" yaml:"final_score"`
	Breakdown     []MetricScore      `json:"breakdown" yaml:"breakdown"`
	TierInfo      TierInfo           `json:"tier_info" yaml:"tier_info"`
	Summary       TransactionSummary `json:"summary" yaml:"summary"`
	Duplicates    []DuplicateGroup   `json:"duplicates" yaml:"duplicates"`
	PolicyVersion string             `json:"policy_version" yaml:"policy_version"`
}

// Metric returns the breakdown entry for a metric name
func (r *ScoreResult) Metric(name string) (MetricScore, bool) {
	for _, m := range r.Breakdown {
		if m.Name == name {
			return m, true
		}
	}
	return MetricScore{}, false
}

// ContributionTotal returns the unrounded sum of the weighted contributions
func (r *ScoreResult) ContributionTotal() float64 {
	total := 0.0
	for _, m := range r.Breakdown {
		total += m.Contribution
	}
	return total
}

// Engine scores transaction sets under one policy. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	policy   *Policy
	detector *DuplicateDetector
	logger   logger.Logger
}

// NewEngine validates the policy and creates an engine. A nil policy
// selects DefaultPolicy.
func NewEngine(policy *Policy) (*Engine, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy = policy.Clone()

	return &Engine{
		policy:   policy,
		detector: NewDuplicateDetector(policy),
		logger:   logger.GetGlobalLogger().WithComponent("scoring"),
	}, nil
}

// WithLogger replaces the component logger
func (e *Engine) WithLogger(l logger.Logger) *Engine {
	e.logger = l.WithComponent("scoring")
	return e
}

// Policy returns a copy of the active policy
func (e *Engine) Policy() *Policy {
	return e.policy.Clone()
}

// Score computes the SpendScore of txs. It fails only for an empty input or
// a transaction without a date; any other non-empty input yields a result.
func (e *Engine) Score(txs []models.Transaction) (*ScoreResult, error) {
	if len(txs) == 0 {
		return nil, errors.InsufficientDataError("spend score")
	}
	for i, tx := range txs {
		if tx.Date.IsZero() {
			return nil, errors.ValidationError(errors.CodeInvalidDate, fmt.Sprintf("transactions[%d].date", i), "zero date", nil)
		}
	}

	summary := Summarize(txs)
	duplicates := e.detector.Detect(txs)
	in := &metricInput{txs: txs, summary: summary, duplicates: duplicates, policy: e.policy}

	breakdown := make([]MetricScore, 0, len(MetricNames))
	total := 0.0
	for _, name := range MetricNames {
		score, detail := metricFuncs[name](in)
		score = round2(score)
		weight := e.policy.Weights.ByMetric(name)
		contribution := round2(score * weight)
		total += contribution

		breakdown = append(breakdown, MetricScore{
			Name:         name,
			Score:        score,
			Weight:       weight,
			Contribution: contribution,
			Detail:       detail,
		})
	}

	final := int(math.Round(total))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	band := e.policy.TierFor(final)
	result := &ScoreResult{
		FinalScore: final,
		Breakdown:  breakdown,
		TierInfo: TierInfo{
			Tier:  band.Tier,
			Label: band.Label,
			Color: band.Color,
		},
		Summary:       summary,
		Duplicates:    duplicates,
		PolicyVersion: e.policy.Version,
	}
	netFlow, _ := result.Metric(MetricNetFlow)
	result.TierInfo.GreenRewardEligible = band.Tier == e.policy.TopTier().Tier &&
		netFlow.Score >= e.policy.GreenRewardMinNetFlow

	e.logger.WithFields(logger.Fields{
		"transactions":     len(txs),
		"final_score":      final,
		"tier":             string(band.Tier),
		"duplicate_groups": len(duplicates),
		"policy_version":   e.policy.Version,
	}).Debug("Computed spend score")

	return result, nil
}
