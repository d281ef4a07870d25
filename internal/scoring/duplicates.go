package scoring

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"spendscore-service/internal/models"
)

// DuplicateGroup is a set of outflows that look like the same charge
// recorded more than once. The first transaction is kept as the original;
// the rest count toward ExtraAmount.
type DuplicateGroup struct {
	GroupID       string               `json:"group_id" yaml:"group_id"`
	Description   string               `json:"description" yaml:"description"`
	Amount        decimal.Decimal      `json:"amount" yaml:"amount"`
	Transactions  []models.Transaction `json:"transactions" yaml:"transactions"`
	ExtraAmount   decimal.Decimal      `json:"extra_amount" yaml:"extra_amount"`
	MinSimilarity float64              `json:"min_similarity" yaml:"min_similarity"`
	Reason        string               `json:"reason" yaml:"reason"`
}

// Occurrences returns how many times the charge appears
func (g DuplicateGroup) Occurrences() int {
	return len(g.Transactions)
}

// DuplicateDetector groups duplicate-looking outflows
type DuplicateDetector struct {
	Similarity float64
	WindowDays int
}

// NewDuplicateDetector creates a detector from the policy thresholds
func NewDuplicateDetector(p *Policy) *DuplicateDetector {
	return &DuplicateDetector{
		Similarity: p.DuplicateSimilarity,
		WindowDays: p.DuplicateWindowDays,
	}
}

// Detect finds duplicate groups among the outflows of txs. Outflows are
// visited in date order (input order within a day); each unassigned outflow
// anchors a group and collects later outflows with the same amount, a
// similar description and a date within the window of the anchor.
func (d *DuplicateDetector) Detect(txs []models.Transaction) []DuplicateGroup {
	type entry struct {
		tx         models.Transaction
		normalized string
	}

	var outflows []entry
	for _, tx := range txs {
		if tx.IsOutflow() {
			outflows = append(outflows, entry{tx: tx, normalized: normalizeDescription(tx.Description)})
		}
	}
	sort.SliceStable(outflows, func(i, j int) bool {
		return outflows[i].tx.Date.Before(outflows[j].tx.Date)
	})

	var groups []DuplicateGroup
	processed := make([]bool, len(outflows))

	for i, anchor := range outflows {
		if processed[i] {
			continue
		}
		processed[i] = true

		members := []models.Transaction{anchor.tx}
		minSimilarity := 1.0

		for j := i + 1; j < len(outflows); j++ {
			if processed[j] {
				continue
			}
			candidate := outflows[j]
			if models.DaysBetween(anchor.tx.Date, candidate.tx.Date) > d.WindowDays {
				break
			}
			if !candidate.tx.Amount.Equal(anchor.tx.Amount) {
				continue
			}
			sim := DescriptionSimilarity(anchor.normalized, candidate.normalized)
			if sim < d.Similarity {
				continue
			}
			members = append(members, candidate.tx)
			processed[j] = true
			if sim < minSimilarity {
				minSimilarity = sim
			}
		}

		if len(members) < 2 {
			continue
		}

		magnitude := anchor.tx.Magnitude()
		extra := magnitude.Mul(decimal.NewFromInt(int64(len(members) - 1)))
		groups = append(groups, DuplicateGroup{
			GroupID:       fmt.Sprintf("DUP_%03d", len(groups)+1),
			Description:   anchor.tx.Description,
			Amount:        anchor.tx.Amount,
			Transactions:  members,
			ExtraAmount:   extra,
			MinSimilarity: minSimilarity,
			Reason:        d.reason(members, minSimilarity),
		})
	}

	return groups
}

func (d *DuplicateDetector) reason(members []models.Transaction, similarity float64) string {
	first, last := members[0].Date, members[len(members)-1].Date
	span := models.DaysBetween(first, last)
	text := "identical description"
	if similarity < 1 {
		text = fmt.Sprintf("description similarity %.0f%%", similarity*100)
	}
	return fmt.Sprintf("%d charges of %s within %d day(s), %s",
		len(members), members[0].Magnitude().StringFixed(2), span, text)
}

// DuplicatedAmount sums the extra occurrences across groups
func DuplicatedAmount(groups []DuplicateGroup) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.ExtraAmount)
	}
	return total
}

// normalizeDescription lower-cases, drops punctuation and collapses spaces
func normalizeDescription(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DescriptionSimilarity is the Dice coefficient over character bigrams of
// two normalized descriptions, in [0,1].
func DescriptionSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		counts[[2]rune{ra[i], ra[i+1]}]++
	}

	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := [2]rune{rb[i], rb[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}
