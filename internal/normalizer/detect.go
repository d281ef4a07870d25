package normalizer

import (
	"sort"
	"strings"

	"spendscore-service/internal/models"
	"spendscore-service/pkg/errors"
)

// Detection is the layout chosen for a header row
type Detection struct {
	Layout     Layout                `json:"layout" yaml:"layout"`
	Candidates []models.SourceFormat `json:"candidates" yaml:"candidates"`
	Forced     bool                  `json:"forced" yaml:"forced"`
}

// keywordRule matches a generic column by name. Keywords earlier in the list
// win; an exact match beats a substring match; remaining ties go to the
// lexically smallest header so column order never matters.
type keywordRule struct {
	keywords []string
	exclude  []string
}

var (
	genericDate = keywordRule{
		keywords: []string{"date", "time", "posted", "when"},
	}
	genericDebit = keywordRule{
		keywords: []string{"debit", "withdrawal", "money out", "paid out", "outflow"},
	}
	genericCredit = keywordRule{
		keywords: []string{"credit", "deposit", "money in", "paid in", "inflow"},
	}
	genericAmount = keywordRule{
		keywords: []string{"amount", "total", "value", "price", "cost"},
		exclude:  []string{"debit", "credit", "withdrawal", "deposit", "balance", "fee", "tax", "money in", "money out", "paid in", "paid out"},
	}
	genericDescription = keywordRule{
		keywords: []string{"description", "memo", "details", "narrative", "particulars", "reference"},
	}
	genericVendor = keywordRule{
		keywords: []string{"vendor", "payee", "merchant", "counterparty", "supplier", "name"},
	}
	genericCategory = keywordRule{
		keywords: []string{"category", "class", "type", "account"},
	}
)

func (r keywordRule) pick(headers []string, used map[string]bool) string {
	best := ""
	bestRank := 0
	for _, h := range headers {
		if h == "" || used[h] || r.excluded(h) {
			continue
		}
		for i, kw := range r.keywords {
			if !strings.Contains(h, kw) {
				continue
			}
			rank := i * 2
			if h != kw {
				rank++
			}
			if best == "" || rank < bestRank || (rank == bestRank && h < best) {
				best, bestRank = h, rank
			}
			break
		}
	}
	if best != "" {
		used[best] = true
	}
	return best
}

func (r keywordRule) excluded(h string) bool {
	for _, ex := range r.exclude {
		if strings.Contains(h, ex) {
			return true
		}
	}
	return false
}

// resolveGeneric binds the fallback layout to a header row. It needs a date
// column plus either an amount column or a debit and credit pair.
func resolveGeneric(normalized []string) (Layout, bool) {
	used := make(map[string]bool)
	cols := ColumnMap{}

	cols.Date = genericDate.pick(normalized, used)
	cols.Debit = genericDebit.pick(normalized, used)
	cols.Credit = genericCredit.pick(normalized, used)
	cols.Amount = genericAmount.pick(normalized, used)
	cols.Description = genericDescription.pick(normalized, used)
	cols.Vendor = genericVendor.pick(normalized, used)
	cols.Category = genericCategory.pick(normalized, used)

	if cols.Date == "" {
		return Layout{}, false
	}
	hasPair := cols.Debit != "" && cols.Credit != ""
	if cols.Amount == "" && !hasPair {
		return Layout{}, false
	}
	if !hasPair {
		cols.Debit, cols.Credit = "", ""
	}

	layout := genericTemplate
	layout.Columns = cols
	layout.Signature = []string{cols.Date}
	if cols.Amount != "" {
		layout.Signature = append(layout.Signature, cols.Amount)
	}
	if hasPair {
		layout.Signature = append(layout.Signature, cols.Debit, cols.Credit)
	}
	return layout, true
}

func hasSignature(l Layout, idx headerIndex) bool {
	for _, col := range l.Signature {
		if !idx.has(col) {
			return false
		}
	}
	return true
}

// dateHits counts sample rows whose date cell parses under the layout
func dateHits(l Layout, idx headerIndex, sample [][]string) int {
	hits := 0
	for _, row := range sample {
		for _, col := range l.DateColumns() {
			raw := idx.value(row, col)
			if raw == "" {
				continue
			}
			if _, err := models.ParseDate(raw, l.DateLayouts...); err == nil {
				hits++
			}
			break
		}
	}
	return hits
}

// selectLayout is the pure detection function. Candidates are the layouts
// whose signature columns are all present; the most specific wins, then the
// one whose date format parses the most sampled rows, then list order. With
// no candidate the generic layout is tried.
func selectLayout(layouts []Layout, normalized []string, sample [][]string) (Layout, []models.SourceFormat, bool) {
	idx := newHeaderIndex(normalized)

	type scored struct {
		pos    int
		layout Layout
		hits   int
	}
	var candidates []scored
	for i, l := range layouts {
		if hasSignature(l, idx) {
			candidates = append(candidates, scored{pos: i, layout: l, hits: dateHits(l, idx, sample)})
		}
	}

	if len(candidates) == 0 {
		generic, ok := resolveGeneric(normalized)
		if !ok {
			return Layout{}, nil, false
		}
		return generic, []models.SourceFormat{models.FormatGeneric}, true
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if len(ca.layout.Signature) != len(cb.layout.Signature) {
			return len(ca.layout.Signature) > len(cb.layout.Signature)
		}
		if ca.hits != cb.hits {
			return ca.hits > cb.hits
		}
		return ca.pos < cb.pos
	})

	formats := make([]models.SourceFormat, len(candidates))
	for i, c := range candidates {
		formats[i] = c.layout.Format
	}
	return candidates[0].layout, formats, true
}

// Detect picks the layout for a raw header row, using sample data rows only
// to break ties between equally specific platform layouts.
func Detect(headers []string, sample [][]string) (*Detection, error) {
	return detect(headers, sample, "", "")
}

func detect(headers []string, sample [][]string, forced models.SourceFormat, file string) (*Detection, error) {
	normalized := normalizeHeaders(headers)

	if forced != "" {
		layout, err := forcedLayout(forced, headers, normalized, file)
		if err != nil {
			return nil, err
		}
		return &Detection{Layout: layout, Candidates: []models.SourceFormat{forced}, Forced: true}, nil
	}

	layout, candidates, ok := selectLayout(PlatformLayouts(), normalized, sample)
	if !ok {
		return nil, errors.FormatError(file, headers)
	}
	return &Detection{Layout: layout, Candidates: candidates}, nil
}

func forcedLayout(format models.SourceFormat, headers, normalized []string, file string) (Layout, error) {
	if format == models.FormatGeneric {
		layout, ok := resolveGeneric(normalized)
		if !ok {
			return Layout{}, errors.FormatError(file, headers).
				WithSuggestion("a generic export needs a date column and an amount (or debit and credit) column")
		}
		return layout, nil
	}

	layout, ok := LayoutFor(format)
	if !ok {
		return Layout{}, errors.UnknownFormatNameError(string(format))
	}
	if !hasSignature(layout, newHeaderIndex(normalized)) {
		return Layout{}, errors.FormatError(file, headers).
			WithSuggestion("the header does not contain the " + layout.Name + " columns: " + strings.Join(layout.Signature, ", ")).
			WithContext("format", string(format))
	}
	return layout, nil
}
