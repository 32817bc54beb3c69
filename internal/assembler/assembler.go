// Package assembler turns per-section outputs into the final report
// document. Every enabled section appears in the result, in catalog order,
// whether or not it was generated.
package assembler

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	maxConclusionItems = 3
	conclusionJoin     = "；"
)

// Report is an assembled report.
type Report struct {
	ReportID     uuid.UUID
	Title        string
	Sections     []models.ReportSection
	Introduction string
	Conclusion   string
	// DataIDs lists every snapshot the generated sections cite, sorted.
	DataIDs []string
}

// Assembler builds reports in the order of a section catalog.
type Assembler struct {
	catalog *section.Catalog
}

func New(catalog *section.Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Succeeded counts the outputs that produced content.
func Succeeded(outputs map[string]*section.Output) int {
	n := 0
	for _, o := range outputs {
		if o.Success() {
			n++
		}
	}
	return n
}

// Assemble never fails: a section without a successful output renders as
// an empty shell.
func (a *Assembler) Assemble(reportID uuid.UUID, title string, outputs map[string]*section.Output) Report {
	r := Report{ReportID: reportID, Title: title}

	ids := make(map[string]bool)
	for _, def := range a.catalog.Definitions() {
		rs := models.ReportSection{
			SectionID: def.SectionID,
			Title:     def.Title,
			Order:     def.Order,
			Type:      def.Type,
			Blocks:    []models.Block{},
		}
		switch {
		case def.SectionID == section.SectionIntroduction:
			rs.Blocks = introduction(outputs)
		case def.SectionID == section.SectionConclusion:
			rs.Blocks = conclusion(outputs)
		case def.Type == section.TypeDynamic:
			if out := outputs[def.SectionID]; out.Success() {
				if len(out.Blocks) > 0 {
					rs.Blocks = out.Blocks
				}
				for _, id := range out.DataIDs {
					ids[id] = true
				}
			}
		}
		r.Sections = append(r.Sections, rs)
	}

	r.DataIDs = make([]string, 0, len(ids))
	for id := range ids {
		r.DataIDs = append(r.DataIDs, id)
	}
	sort.Strings(r.DataIDs)

	summary := outputs[section.SectionSummary].Fields()
	r.Introduction, _ = summary["summary_text"].(string)
	r.Conclusion = strings.Join(highlightContents(summary), conclusionJoin)
	return r
}

var introMapping = map[string]section.BlockMapping{
	"roxscan_card": {Type: "card", Component: "RoxscanCard"},
	"radar_chart":  {Type: "chart", Component: "RadarChart"},
}

// introduction repeats the score card and radar chart of the summary.
func introduction(outputs map[string]*section.Output) []models.Block {
	out := outputs[section.SectionSummary]
	fields := out.Fields()
	if fields == nil {
		return []models.Block{}
	}
	picked := make(map[string]any, len(introMapping))
	for k := range introMapping {
		if v, ok := fields[k]; ok {
			picked[k] = v
		}
	}
	return section.Blocks(picked, introMapping, out.DataIDs)
}

// conclusion gathers strengths, improvement areas, next actions and the
// recommended target from the generated sections.
func conclusion(outputs map[string]*section.Output) []models.Block {
	blocks := []models.Block{}

	summary := outputs[section.SectionSummary].Fields()
	if items := highlightItems(summary, string(section.SideStrength)); len(items) > 0 {
		blocks = append(blocks, listBlock("StrengthsList", "您的優勢", items))
	}

	training := outputs[section.SectionTraining].Fields()
	if items := firstItems(training["weakness_analysis"]); len(items) > 0 {
		blocks = append(blocks, listBlock("ImprovementsList", "重點改進方向", items))
	}
	if items := firstItems(training["key_workouts"]); len(items) > 0 {
		blocks = append(blocks, listBlock("ActionItems", "下一步行動", items))
	}

	if b, ok := targetCard(outputs[section.SectionPrediction].Fields()); ok {
		blocks = append(blocks, b)
	}
	return blocks
}

func listBlock(component, title string, items []any) models.Block {
	return models.Block{
		Type:      "list",
		Component: component,
		Props:     map[string]any{"title": title, "items": items},
	}
}

func targetCard(fields map[string]any) (models.Block, bool) {
	target, _ := fields["recommended_target"].(string)
	if target == "" {
		return models.Block{}, false
	}
	props := map[string]any{"title": "目標成績", "target": target}
	if pt, ok := fields["prediction_tiers"].(map[string]any); ok {
		if tiers, ok := pt["tiers"].(map[string]any); ok {
			if tier, ok := tiers[target].(map[string]any); ok {
				props["time"] = tier["time_display"]
			}
		}
	}
	return models.Block{Type: "card", Component: "TargetCard", Props: props}, true
}

// highlightItems returns up to maxConclusionItems summary highlights of typ.
func highlightItems(summary map[string]any, typ string) []any {
	list, _ := summary["highlights"].([]any)
	var out []any
	for _, h := range list {
		m, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if m["type"] != typ {
			continue
		}
		out = append(out, m)
		if len(out) == maxConclusionItems {
			break
		}
	}
	return out
}

func highlightContents(summary map[string]any) []string {
	list, _ := summary["highlights"].([]any)
	var out []string
	for _, h := range list {
		m, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if c, _ := m["content"].(string); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func firstItems(v any) []any {
	list, _ := v.([]any)
	if len(list) > maxConclusionItems {
		return list[:maxConclusionItems]
	}
	return list
}
