package section

import (
	"sort"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const defaultBlockOrder = 50

// blockOrder fixes where an argument's block lands within its section.
var blockOrder = map[string]int{
	// summary
	"roxscan_card": 1,
	"radar_chart":  2,
	"summary_text": 10,
	"highlights":   11,
	// time_loss
	"value_proposition":  1,
	"intro_text":         2,
	"loss_overview":      3,
	"loss_table":         3,
	"waterfall_chart":    4,
	"segment_comparison": 5,
	"deep_analysis":      6,
	// heart_rate
	"hr_pace_chart":      1,
	"phases":             2,
	"decoupling_metrics": 3,
	"pace_trend_chart":   4,
	"degraded_analysis":  5,
	// prediction
	"prediction_tiers":      1,
	"density_chart":         2,
	"key_improvements":      3,
	"split_breakdown_table": 4,
	// training
	"weakness_analysis": 1,
	"training_week":     2,
	"priority_matrix":   3,
	"key_workouts":      4,
	"nutrition_tips":    5,

	"analysis_text": 100,
}

// dataTypeFor names the data a chart-like argument renders, so a block the
// model left without a data_id can still be resolved to its snapshot.
var dataTypeFor = map[string]string{
	"radar_chart":      reportdata.TypePercentileRanking,
	"loss_table":       reportdata.TypeTimeLossAnalysis,
	"loss_overview":    reportdata.TypeTimeLossAnalysis,
	"waterfall_chart":  reportdata.TypeTimeLossAnalysis,
	"priority_matrix":  reportdata.TypeTimeLossAnalysis,
	"hr_pace_chart":    reportdata.TypeHeartRateData,
	"pace_trend_chart": reportdata.TypePacingAnalysis,
	"prediction_tiers": reportdata.TypePredictionData,
	"density_chart":    reportdata.TypePredictionData,
}

func orderOf(arg string) int {
	if o, ok := blockOrder[arg]; ok {
		return o
	}
	return defaultBlockOrder
}

// Blocks maps arguments onto renderable blocks. Mapped arguments use their
// configured type and component; the rest get a generic block by shape.
// Keys starting with "_" are skipped.
func Blocks(fields map[string]any, mapping map[string]BlockMapping, dataIDs map[string]string) []models.Block {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(k, "_") || v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := orderOf(keys[i]), orderOf(keys[j])
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})

	blocks := make([]models.Block, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if m, ok := mapping[k]; ok {
			blocks = append(blocks, mappedBlock(k, v, m, dataIDs))
			continue
		}
		if b, ok := defaultBlock(k, v); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func mappedBlock(arg string, v any, m BlockMapping, dataIDs map[string]string) models.Block {
	b := models.Block{Type: m.Type, Component: m.Component}
	if b.Type == "" {
		b.Type = "text"
	}
	if b.Component == "" {
		b.Component = "Paragraph"
	}

	switch x := v.(type) {
	case map[string]any:
		props := make(map[string]any, len(x)+1)
		for k, vv := range x {
			props[k] = vv
		}
		if id, _ := props["data_id"].(string); id == "" {
			if dt, ok := dataTypeFor[arg]; ok {
				if id, ok := dataIDs[dt]; ok {
					props["data_id"] = id
				}
			}
		}
		b.Props = props
	case []any:
		b.Props = map[string]any{"items": x}
	case string:
		b.Props = map[string]any{"content": x}
	default:
		b.Props = map[string]any{"value": x}
	}
	return b
}

func defaultBlock(arg string, v any) (models.Block, bool) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return models.Block{}, false
		}
		return models.Block{Type: "text", Component: "Paragraph", Props: map[string]any{"content": x}}, true
	case []any:
		return models.Block{Type: "list", Component: "GenericList", Props: map[string]any{"items": x, "name": arg}}, true
	case map[string]any:
		props := make(map[string]any, len(x)+1)
		for k, vv := range x {
			props[k] = vv
		}
		props["_name"] = arg
		return models.Block{Type: "card", Component: "GenericCard", Props: props}, true
	default:
		return models.Block{}, false
	}
}
