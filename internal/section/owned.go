package section

import (
	"math"
	"strconv"
	"strings"
)

type ownedKind int

const (
	ownedFloat ownedKind = iota
	ownedInt
	ownedString
)

// ownedField is an argument path whose value Patch replaces with a computed
// one. "*" walks every element of a list or every value of an object.
type ownedField struct {
	path []string
	kind ownedKind
}

func owned(kind ownedKind, path ...string) ownedField {
	return ownedField{path: path, kind: kind}
}

var ownedFields = map[string][]ownedField{
	SectionTimeLoss: {
		owned(ownedFloat, "loss_overview", "total_loss_seconds"),
		owned(ownedString, "loss_overview", "total_loss_display"),
		owned(ownedFloat, "loss_overview", "items", "*", "loss_seconds"),
		owned(ownedString, "loss_overview", "items", "*", "loss_display"),
		owned(ownedInt, "loss_overview", "items", "*", "difficulty_level"),
		owned(ownedString, "loss_overview", "items", "*", "difficulty"),
		owned(ownedString, "loss_overview", "items", "*", "improvement_display"),
		owned(ownedString, "segment_comparison", "*", "table_data", "*", "you"),
		owned(ownedString, "segment_comparison", "*", "table_data", "*", "top10"),
		owned(ownedString, "segment_comparison", "*", "table_data", "*", "diff"),
		owned(ownedString, "segment_comparison", "*", "conclusion_blocks", "*", "gap_vs_top10"),
		owned(ownedString, "segment_comparison", "*", "conclusion_blocks", "*", "improvement_display"),
	},
	SectionSummary: {
		owned(ownedString, "roxscan_card", "total_time"),
		owned(ownedInt, "roxscan_card", "overall_rank"),
		owned(ownedInt, "roxscan_card", "overall_total"),
		owned(ownedInt, "roxscan_card", "gender_rank"),
		owned(ownedInt, "roxscan_card", "gender_total"),
		owned(ownedInt, "roxscan_card", "division_rank"),
		owned(ownedInt, "roxscan_card", "division_total"),
		owned(ownedFloat, "roxscan_card", "percentile"),
	},
	SectionPrediction: {
		owned(ownedInt, "prediction_tiers", "tiers", "*", "percentile"),
		owned(ownedInt, "prediction_tiers", "tiers", "*", "time_seconds"),
		owned(ownedString, "prediction_tiers", "tiers", "*", "time_display"),
		owned(ownedInt, "prediction_tiers", "tiers", "*", "delta"),
		owned(ownedString, "prediction_tiers", "tiers", "*", "delta_display"),
	},
}

// normalizeOwned coerces the computed fields of sectionID in place so a
// badly typed value the model wrote there cannot fail the typed decode.
// Numeric strings become numbers, fractions are rounded for integer fields
// and anything else is dropped.
func normalizeOwned(sectionID string, fields map[string]any) {
	for _, f := range ownedFields[sectionID] {
		visitOwned(fields, f.path, f.kind)
	}
}

func visitOwned(node any, path []string, kind ownedKind) {
	if len(path) == 0 {
		return
	}
	switch n := node.(type) {
	case map[string]any:
		if path[0] == "*" {
			for _, v := range n {
				visitOwned(v, path[1:], kind)
			}
			return
		}
		if len(path) == 1 {
			coerceOwned(n, path[0], kind)
			return
		}
		if child, ok := n[path[0]]; ok {
			visitOwned(child, path[1:], kind)
		}
	case []any:
		if path[0] == "*" {
			for _, v := range n {
				visitOwned(v, path[1:], kind)
			}
		}
	}
}

func coerceOwned(m map[string]any, key string, kind ownedKind) {
	v, ok := m[key]
	if !ok || v == nil {
		return
	}
	if kind == ownedString {
		if _, ok := v.(string); !ok {
			delete(m, key)
		}
		return
	}
	f, ok := toNumber(v)
	if !ok {
		delete(m, key)
		return
	}
	if kind == ownedInt {
		f = math.Round(f)
	}
	m[key] = f
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	// integers past 2^53 lose precision and marshal in exponent form
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return f, true
}
