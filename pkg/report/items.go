// pkg/report/items.go

package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

// ResultKey represents the level of importance for a result in a report summary
type ResultKey string

const (
	// ResultKeyNoChange indicates no changes are needed
	ResultKeyNoChange ResultKey = "nochange"

	// ResultKeyRecommended indicates changes are recommended
	ResultKeyRecommended ResultKey = "recommended"

	// ResultKeyRequired indicates changes are required
	ResultKeyRequired ResultKey = "required"

	// ResultKeyEvaluate indicates the result needs a human to evaluate it
	ResultKeyEvaluate ResultKey = "eval"
)

// KeyFor maps a check result onto the report key. Failed high severity rules
// require changes, other failures are recommendations.
func KeyFor(result audit.CheckResult) ResultKey {
	switch result.Status {
	case audit.StatusPass:
		return ResultKeyNoChange
	case audit.StatusManual:
		return ResultKeyEvaluate
	}
	if result.Severity == audit.SeverityHigh {
		return ResultKeyRequired
	}
	return ResultKeyRecommended
}

// Item is one result placed in its category and section
type Item struct {
	Category string
	Section  string
	Key      string
	Result   audit.CheckResult
}

// ResultKey returns the report key of the item
func (i Item) ResultKey() ResultKey {
	return KeyFor(i.Result)
}

// Items flattens a system report in run order. Within a section results are
// ordered by benchmark id.
func Items(report *audit.Report) []Item {
	var items []Item
	for _, section := range report.Sections {
		items = append(items, SectionItems(section)...)
	}
	return items
}

// SectionItems flattens one category report. Results a category produced
// itself come first, followed by each sub-category in run order. A key that
// several sub-categories produced is listed once, under the sub-category whose
// result the merged set kept.
func SectionItems(cr *audit.CategoryReport) []Item {
	var candidates []Item
	last := make(map[string]int)
	for _, sub := range cr.Subcategories {
		for _, item := range SectionItems(sub) {
			item.Category = cr.Name
			last[item.Key] = len(candidates)
			candidates = append(candidates, item)
		}
	}

	owned := make(map[string]bool, len(last))
	var nested []Item
	for i, item := range candidates {
		if _, ok := cr.Results[item.Key]; !ok || last[item.Key] != i {
			continue
		}
		owned[item.Key] = true
		nested = append(nested, item)
	}

	var own []Item
	for key, result := range cr.Results {
		if owned[key] {
			continue
		}
		own = append(own, Item{Category: cr.Name, Section: cr.Name, Key: key, Result: result})
	}
	sortItems(own)

	return append(own, nested...)
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if c := CompareIDs(items[i].Result.ID, items[j].Result.ID); c != 0 {
			return c < 0
		}
		return items[i].Key < items[j].Key
	})
}

// CompareIDs orders dotted benchmark ids numerically, so 1.2 sorts before
// 1.10. Non-numeric parts compare as strings.
func CompareIDs(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

// Tally counts items per report key
type Tally struct {
	Required    int
	Recommended int
	Evaluate    int
	NoChange    int
}

// Count tallies the report keys of items
func Count(items []Item) Tally {
	var t Tally
	for _, item := range items {
		switch item.ResultKey() {
		case ResultKeyRequired:
			t.Required++
		case ResultKeyRecommended:
			t.Recommended++
		case ResultKeyEvaluate:
			t.Evaluate++
		default:
			t.NoChange++
		}
	}
	return t
}
