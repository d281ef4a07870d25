package scoring

import (
	"fmt"
	"math"
	"time"

	"spendscore-service/internal/models"
)

// metricFunc computes one sub-score in [0,100] with a short explanation
type metricFunc func(in *metricInput) (float64, string)

type metricInput struct {
	txs        []models.Transaction
	summary    TransactionSummary
	duplicates []DuplicateGroup
	policy     *Policy
}

var metricFuncs = map[string]metricFunc{
	MetricConsistency:   spendingConsistency,
	MetricConcentration: categoryConcentration,
	MetricFrequency:     frequencyRegularity,
	MetricWaste:         wasteIndicators,
	MetricNetFlow:       netFlowHealth,
}

// spendingConsistency rewards evenly sized outflows: 100 / (1 + CV) of the
// outflow magnitudes.
func spendingConsistency(in *metricInput) (float64, string) {
	var values []float64
	for _, tx := range in.txs {
		if tx.IsOutflow() {
			values = append(values, tx.Magnitude().InexactFloat64())
		}
	}
	if len(values) < 2 {
		return 100, fmt.Sprintf("%d outflow(s), too few to vary", len(values))
	}
	cv := coefficientOfVariation(values)
	return inverseCV(cv), fmt.Sprintf("outflow size CV %.2f over %d outflows", cv, len(values))
}

// categoryConcentration rewards outflow spread over several categories. The
// effective category count 1/HHI is scaled so that one category scores 0 and
// TargetCategories or more score 100.
func categoryConcentration(in *metricInput) (float64, string) {
	total := in.summary.TotalOutflow.InexactFloat64()
	categories := in.summary.OutflowCategories()
	if total <= 0 || len(categories) == 0 {
		return 100, "no outflows"
	}

	hhi := 0.0
	for _, ct := range categories {
		share := ct.Outflow.InexactFloat64() / total
		hhi += share * share
	}
	effective := 1 / hhi
	score := 100 * math.Min(1, (effective-1)/(in.policy.TargetCategories-1))

	top := categories[0]
	return clampScore(score), fmt.Sprintf("%.1f effective categories of %d, top %s at %.0f%%",
		effective, len(categories), top.Category, 100*top.Outflow.InexactFloat64()/total)
}

// frequencyRegularity rewards a steady transaction rhythm: 100 / (1 + CV) of
// transaction counts per bucket, empty buckets included.
func frequencyRegularity(in *metricInput) (float64, string) {
	counts := bucketCounts(in.txs, in.summary.FirstDate, in.policy.FrequencyBucketDays)
	if len(counts) < 2 {
		return 100, fmt.Sprintf("all activity within one %d-day period", in.policy.FrequencyBucketDays)
	}

	values := make([]float64, len(counts))
	empty := 0
	for i, c := range counts {
		values[i] = float64(c)
		if c == 0 {
			empty++
		}
	}
	cv := coefficientOfVariation(values)
	return inverseCV(cv), fmt.Sprintf("count CV %.2f over %d periods of %d days, %d empty",
		cv, len(counts), in.policy.FrequencyBucketDays, empty)
}

// wasteIndicators penalizes the share of outflow repeated by duplicate
// charges, reaching 0 at MaxWasteRatio.
func wasteIndicators(in *metricInput) (float64, string) {
	total := in.summary.TotalOutflow.InexactFloat64()
	if total <= 0 {
		return 100, "no outflows"
	}

	duplicated := DuplicatedAmount(in.duplicates)
	ratio := duplicated.InexactFloat64() / total
	score := 100 * (1 - math.Min(1, ratio/in.policy.MaxWasteRatio))

	return clampScore(score), fmt.Sprintf("%d duplicate group(s), %s duplicated (%.1f%% of outflow)",
		len(in.duplicates), duplicated.StringFixed(2), ratio*100)
}

// netFlowHealth rewards inflow covering outflow, reaching 100 at
// NetFlowTargetRatio.
func netFlowHealth(in *metricInput) (float64, string) {
	inflow := in.summary.TotalInflow.InexactFloat64()
	outflow := in.summary.TotalOutflow.InexactFloat64()

	if outflow <= 0 {
		if inflow > 0 {
			return 100, "inflow with no outflow"
		}
		return 50, "no inflow or outflow"
	}

	ratio := inflow / outflow
	target := in.policy.NetFlowTargetRatio
	score := 100 * math.Min(ratio, target) / target
	return clampScore(score), fmt.Sprintf("inflow/outflow ratio %.2f (target %.2f)", ratio, target)
}

// bucketCounts counts transactions per bucket of width days starting at
// first, from the first bucket through the last occupied one.
func bucketCounts(txs []models.Transaction, first time.Time, days int) []int {
	if len(txs) == 0 {
		return nil
	}
	last := 0
	index := make([]int, len(txs))
	for i, tx := range txs {
		index[i] = models.DaysBetween(first, tx.Date) / days
		if index[i] > last {
			last = index[i]
		}
	}
	counts := make([]int, last+1)
	for _, b := range index {
		counts[b]++
	}
	return counts
}

// coefficientOfVariation is the population standard deviation over the
// mean, 0 when the mean is 0.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance) / mean
}

func inverseCV(cv float64) float64 {
	return clampScore(100 / (1 + cv))
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
