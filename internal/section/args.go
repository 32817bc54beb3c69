package section

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// Section ids with typed arguments or special handling.
const (
	SectionIntroduction = "introduction"
	SectionSummary      = "summary"
	SectionTimeLoss     = "time_loss"
	SectionHeartRate    = "heart_rate"
	SectionPrediction   = "prediction"
	SectionTraining     = "training"
	SectionConclusion   = "conclusion"
)

// Args is the parsed function-call output of one section.
type Args interface {
	// Fields returns the arguments as a JSON object, unknown keys included.
	Fields() map[string]any
}

// GenericArgs holds the arguments of sections nothing is patched into.
type GenericArgs map[string]any

func (g GenericArgs) Fields() map[string]any {
	out := make(map[string]any, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

// TimeLossArgs is the output of the time_loss section.
type TimeLossArgs struct {
	ValueProposition  string            `json:"value_proposition"`
	IntroText         string            `json:"intro_text,omitempty"`
	LossOverview      LossOverview      `json:"loss_overview"`
	SegmentComparison SegmentComparison `json:"segment_comparison"`
	Extra             map[string]any    `json:"-"`
}

type LossOverview struct {
	TotalLossSeconds float64    `json:"total_loss_seconds"`
	TotalLossDisplay string     `json:"total_loss_display"`
	Items            []LossItem `json:"items"`
}

// LossItem is one row of the loss table. Source and SourceDesc are prose;
// every other field is overwritten from the canonical loss list.
type LossItem struct {
	Source             string  `json:"source"`
	SourceDesc         string  `json:"source_desc,omitempty"`
	LossSeconds        float64 `json:"loss_seconds"`
	LossDisplay        string  `json:"loss_display"`
	Difficulty         string  `json:"difficulty,omitempty"`
	DifficultyLevel    int     `json:"difficulty_level,omitempty"`
	ImprovementDisplay string  `json:"improvement_display,omitempty"`
}

type SegmentComparison struct {
	Running *ComparisonGroup `json:"running,omitempty"`
	Workout *ComparisonGroup `json:"workout,omitempty"`
	Roxzone *ComparisonGroup `json:"roxzone,omitempty"`
}

type ComparisonGroup struct {
	ChartData        []map[string]any  `json:"chart_data,omitempty"`
	TableData        []TableRow        `json:"table_data"`
	ConclusionBlocks []ConclusionBlock `json:"conclusion_blocks"`
}

type TableRow struct {
	Segment   string `json:"segment"`
	You       string `json:"you"`
	Top10     string `json:"top10"`
	Diff      string `json:"diff"`
	Highlight bool   `json:"highlight"`
}

type ConclusionBlock struct {
	Segment            string `json:"segment"`
	GapVsTop10         string `json:"gap_vs_top10,omitempty"`
	PacingIssue        string `json:"pacing_issue,omitempty"`
	ImprovementDisplay string `json:"improvement_display"`
	ImprovementLogic   string `json:"improvement_logic"`
}

func (a TimeLossArgs) Fields() map[string]any { return merge(a, a.Extra) }

// SummaryArgs is the output of the summary section.
type SummaryArgs struct {
	SummaryText string         `json:"summary_text"`
	RoxscanCard *RoxscanCard   `json:"roxscan_card,omitempty"`
	RadarChart  map[string]any `json:"radar_chart,omitempty"`
	Highlights  []Highlight    `json:"highlights"`
	Strengths   []SegmentNote  `json:"strengths,omitempty"`
	Weaknesses  []SegmentNote  `json:"weaknesses,omitempty"`
	Extra       map[string]any `json:"-"`
}

// RoxscanCard is the headline score card. Every numeric field is
// overwritten from the precomputed ranking.
type RoxscanCard struct {
	DataID        string  `json:"data_id,omitempty"`
	AthleteName   string  `json:"athlete_name,omitempty"`
	TotalTime     string  `json:"total_time"`
	OverallRank   int     `json:"overall_rank"`
	OverallTotal  int     `json:"overall_total"`
	GenderRank    int     `json:"gender_rank"`
	GenderTotal   int     `json:"gender_total"`
	DivisionRank  int     `json:"division_rank"`
	DivisionTotal int     `json:"division_total"`
	Percentile    float64 `json:"percentile"`
	Level         string  `json:"level,omitempty"`
	Tagline       string  `json:"tagline,omitempty"`
}

type Highlight struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Segment string `json:"segment,omitempty"`
}

// SegmentNote is a strength or weakness. The model may answer with a plain
// string; the segment is then recovered from the text.
type SegmentNote struct {
	Segment string `json:"segment"`
	Text    string `json:"text"`
}

func (n *SegmentNote) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		n.Text = s
		if seg, ok := segmentIn(s); ok {
			n.Segment = seg.String()
		}
		return nil
	}
	type plain SegmentNote
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*n = SegmentNote(p)
	return nil
}

func (a SummaryArgs) Fields() map[string]any { return merge(a, a.Extra) }

// PredictionArgs is the output of the prediction section.
type PredictionArgs struct {
	RecommendedTarget string           `json:"recommended_target,omitempty"`
	PredictionTiers   *PredictionTiers `json:"prediction_tiers,omitempty"`
	DensityChart      map[string]any   `json:"density_chart,omitempty"`
	AnalysisText      string           `json:"analysis_text,omitempty"`
	Extra             map[string]any   `json:"-"`
}

type PredictionTiers struct {
	DataID string              `json:"data_id,omitempty"`
	Tiers  map[string]TierView `json:"tiers"`
}

// TierView is one predicted outcome. Label and Description are prose.
type TierView struct {
	Label        string `json:"label,omitempty"`
	Percentile   int    `json:"percentile"`
	TimeSeconds  int    `json:"time_seconds"`
	TimeDisplay  string `json:"time_display"`
	Delta        int    `json:"delta"`
	DeltaDisplay string `json:"delta_display"`
	Description  string `json:"description,omitempty"`
}

func (a PredictionArgs) Fields() map[string]any { return merge(a, a.Extra) }

var (
	timeLossKeys   = []string{"value_proposition", "intro_text", "loss_overview", "segment_comparison"}
	summaryKeys    = []string{"summary_text", "roxscan_card", "radar_chart", "highlights", "strengths", "weaknesses"}
	predictionKeys = []string{"recommended_target", "prediction_tiers", "density_chart", "analysis_text"}
)

// ParseArgs converts decoded arguments into the typed form of sectionID.
// Sections without a typed form get GenericArgs. Fields that Patch computes
// are coerced in place first, so only a wrong shape elsewhere is an error.
func ParseArgs(sectionID string, fields map[string]any) (Args, error) {
	normalizeOwned(sectionID, fields)
	switch sectionID {
	case SectionTimeLoss:
		var a TimeLossArgs
		if err := decode(fields, &a); err != nil {
			return nil, err
		}
		a.Extra = extra(fields, timeLossKeys)
		return a, nil
	case SectionSummary:
		var a SummaryArgs
		if err := decode(fields, &a); err != nil {
			return nil, err
		}
		a.Extra = extra(fields, summaryKeys)
		return a, nil
	case SectionPrediction:
		var a PredictionArgs
		if err := decode(fields, &a); err != nil {
			return nil, err
		}
		a.Extra = extra(fields, predictionKeys)
		return a, nil
	default:
		return GenericArgs(fields), nil
	}
}

func decode(fields map[string]any, out any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func extra(fields map[string]any, known []string) map[string]any {
	out := make(map[string]any)
outer:
	for k, v := range fields {
		for _, kk := range known {
			if k == kk {
				continue outer
			}
		}
		out[k] = v
	}
	return out
}

func merge(typed any, rest map[string]any) map[string]any {
	m, err := toMap(typed)
	if err != nil {
		m = make(map[string]any)
	}
	for k, v := range rest {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return m
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// segmentIn finds the segment named in free text, e.g. "Run 8 (配速)".
// The longest matching display name wins so "Sled Push" never matches "Sled Pull".
func segmentIn(s string) (models.Segment, bool) {
	best, bestLen := models.Segment(0), 0
	for _, seg := range models.AllSegments() {
		name := seg.String()
		if len(name) > bestLen && strings.Contains(s, name) {
			best, bestLen = seg, len(name)
		}
	}
	return best, bestLen > 0
}
