// Package improvement turns a loss breakdown into per-segment recommended
// improvements. The oracle only proposes magnitudes and reasons; every value
// is clamped to a statistical ceiling before it leaves this package.
package improvement

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	jsoniter "github.com/json-iterator/go"

	"github.com/kiranshivaraju/hyroxreport/internal/ai"
	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/internal/timefmt"
	"github.com/kiranshivaraju/hyroxreport/internal/timeloss"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	KindRunning = "running"
	KindWorkout = "workout"
	KindRoxzone = "roxzone"

	SourceOracle   = "oracle"
	SourceFallback = "fallback"
	SourceEmpty    = "empty"
)

const (
	reasonFallbackRunning = "以 Top 10% 差距为上限的保守估计。"
	reasonFallbackNoTop   = "无 Top 10% 数据，暂不给出可提升。"
	reasonFallbackWorkout = "与组别参考的损耗，可作为可争取空间。"
	reasonFallbackRoxzone = "转换区损耗可作为可争取空间。"
	reasonDefaultRunning  = "满足与 Top 10% 差距约束。"
	reasonDefaultWorkout  = "与参考损耗一致。"
	reasonDefaultRoxzone  = "转换区可争取空间。"
	maxReasonRunes        = 120
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Allocation is the recommended improvement for one segment.
// RecommendedSeconds never exceeds CeilingSeconds.
type Allocation struct {
	Segment            models.Segment `json:"-"`
	Name               string         `json:"segment"`
	Kind               string         `json:"kind"`
	LossSeconds        float64        `json:"loss_seconds"`
	CeilingSeconds     float64        `json:"ceiling_seconds"`
	HasReference       bool           `json:"has_reference"`
	RecommendedSeconds float64        `json:"recommended_improvement_seconds"`
	Display            string         `json:"improvement_display"`
	Reason             string         `json:"reason"`
}

// Result is the allocation for every segment of the loss breakdown.
type Result struct {
	Running []Allocation `json:"running"`
	Workout []Allocation `json:"workout"`
	Roxzone *Allocation  `json:"roxzone,omitempty"`
	Source  string       `json:"source"`
}

// All returns every allocation, running first.
func (r Result) All() []Allocation {
	out := make([]Allocation, 0, len(r.Running)+len(r.Workout)+1)
	out = append(out, r.Running...)
	out = append(out, r.Workout...)
	if r.Roxzone != nil {
		out = append(out, *r.Roxzone)
	}
	return out
}

// Find returns the allocation of s.
func (r Result) Find(s models.Segment) (Allocation, bool) {
	for _, a := range r.All() {
		if a.Segment == s {
			return a, true
		}
	}
	return Allocation{}, false
}

// Input is what the estimator needs: the loss breakdown, the athlete's
// times, and the top-decile statistics that bound running improvements.
type Input struct {
	Athlete    *models.RaceResult
	Losses     timeloss.Analysis
	Comparison stats.Comparison
	TopDecile  *stats.CohortStats
}

// ClampRecorder observes clamp activations. metrics.Metrics implements it.
type ClampRecorder interface {
	ImprovementClamped(kind string)
}

// ModelConfig selects the model used for the estimate.
type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Estimator asks the oracle for an allocation and enforces the ceilings.
type Estimator struct {
	oracle   models.Oracle
	model    ModelConfig
	recorder ClampRecorder
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithModel sets the model parameters of the oracle request.
func WithModel(m ModelConfig) Option {
	return func(e *Estimator) { e.model = m }
}

// WithClampRecorder reports clamp activations to r.
func WithClampRecorder(r ClampRecorder) Option {
	return func(e *Estimator) { e.recorder = r }
}

// NewEstimator creates an Estimator using oracle.
func NewEstimator(oracle models.Oracle, opts ...Option) *Estimator {
	e := &Estimator{
		oracle: oracle,
		model:  ModelConfig{MaxTokens: 2048, Temperature: 0.3},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Estimate returns the clamped allocation. Oracle failures fall back to the
// ceilings; an empty breakdown returns an empty result without a call.
func (e *Estimator) Estimate(ctx context.Context, in Input) Result {
	entries := buildEntries(in)
	if len(entries) == 0 {
		return Result{Source: SourceEmpty}
	}

	proposal, err := e.ask(ctx, entries)
	if err != nil {
		slog.Warn("improvement estimate fell back to ceilings", "error", err)
		return e.normalize(entries, nil, SourceFallback)
	}
	return e.normalize(entries, proposal, SourceOracle)
}

// entry is one segment the oracle is asked about.
type entry struct {
	segment      models.Segment
	kind         string
	loss         float64
	ceiling      float64
	hasReference bool
	athlete      float64
	reference    float64
	percentile   float64
	hasRank      bool
}

func buildEntries(in Input) []entry {
	var out []entry
	for _, it := range in.Losses.PacingCandidates {
		e := entry{segment: it.Segment, kind: KindRunning, loss: it.LossSeconds, athlete: it.AthleteValue}
		// The reference is the top-decile cohort's mean, which shares the
		// 10-finisher floor, rather than the division's p10 of the run field.
		if fs, ok := in.TopDecile.Get(it.Segment.Field()); ok {
			e.hasReference = true
			e.reference = fs.Avg
			e.ceiling = stats.Round1(math.Max(0, (it.AthleteValue-fs.Avg)*60))
		}
		if row, ok := in.Comparison.Find(it.Segment); ok {
			e.percentile, e.hasRank = row.Percentile, true
		}
		out = append(out, e)
	}
	for _, it := range in.Losses.Stations {
		e := entry{
			segment: it.Segment, kind: KindWorkout, loss: it.LossSeconds, ceiling: it.LossSeconds,
			hasReference: true, athlete: it.AthleteValue, reference: it.ReferenceValue,
		}
		if row, ok := in.Comparison.Find(it.Segment); ok {
			e.percentile, e.hasRank = row.Percentile, true
		}
		out = append(out, e)
	}
	if t := in.Losses.Transition; t != nil {
		out = append(out, entry{
			segment: t.Segment, kind: KindRoxzone, loss: t.LossSeconds, ceiling: t.LossSeconds,
			hasReference: true, athlete: t.AthleteValue, reference: t.ReferenceValue,
		})
	}
	return out
}

// proposal is the oracle's JSON answer.
type proposal struct {
	Running []proposedItem `json:"running"`
	Workout []proposedItem `json:"workout"`
	Roxzone *proposedItem  `json:"roxzone"`
}

type proposedItem struct {
	Segment     string   `json:"segment"`
	Recommended *float64 `json:"recommended_improvement_seconds"`
	Reason      string   `json:"reason"`
}

func (e *Estimator) ask(ctx context.Context, entries []entry) (*proposal, error) {
	resp, err := e.oracle.Chat(ctx, models.ChatRequest{
		Model:       e.model.Model,
		Messages:    []models.Message{{Role: models.RoleUser, Content: buildPrompt(entries)}},
		MaxTokens:   e.model.MaxTokens,
		Temperature: e.model.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle call: %w", err)
	}
	var p proposal
	if err := json.Unmarshal([]byte(ai.StripCodeFence(resp.Content)), &p); err != nil {
		return nil, fmt.Errorf("%w: parse improvement json: %v", ai.ErrInvalidResponse, err)
	}
	return &p, nil
}

func (e *Estimator) normalize(entries []entry, p *proposal, source string) Result {
	lookup := map[string]proposedItem{}
	if p != nil {
		for _, it := range p.Running {
			lookup[KindRunning+"/"+it.Segment] = it
		}
		for _, it := range p.Workout {
			lookup[KindWorkout+"/"+it.Segment] = it
		}
		if p.Roxzone != nil {
			lookup[KindRoxzone+"/"+models.SegmentRoxzone.String()] = *p.Roxzone
		}
	}

	out := Result{Source: source}
	for _, en := range entries {
		a := Allocation{
			Segment:        en.segment,
			Name:           en.segment.String(),
			Kind:           en.kind,
			LossSeconds:    en.loss,
			CeilingSeconds: en.ceiling,
			HasReference:   en.hasReference,
		}

		proposed, ok := lookup[en.kind+"/"+a.Name]
		if ok && proposed.Recommended != nil {
			v := *proposed.Recommended
			if v > en.ceiling || v < 0 || math.IsNaN(v) {
				if e.recorder != nil {
					e.recorder.ImprovementClamped(en.kind)
				}
			}
			a.RecommendedSeconds = stats.Round1(clamp(v, en.ceiling))
			a.Reason = truncate(proposed.Reason, maxReasonRunes)
			if a.Reason == "" {
				a.Reason = defaultReason(en.kind)
			}
		} else {
			a.RecommendedSeconds = en.ceiling
			a.Reason = fallbackReason(en)
		}
		a.Display = timefmt.Improvement(a.RecommendedSeconds)

		switch en.kind {
		case KindRunning:
			out.Running = append(out.Running, a)
		case KindWorkout:
			out.Workout = append(out.Workout, a)
		case KindRoxzone:
			rox := a
			out.Roxzone = &rox
		}
	}
	return out
}

func clamp(v, ceiling float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, ceiling)
}

func fallbackReason(en entry) string {
	switch en.kind {
	case KindRunning:
		if !en.hasReference {
			return reasonFallbackNoTop
		}
		return reasonFallbackRunning
	case KindWorkout:
		return reasonFallbackWorkout
	default:
		return reasonFallbackRoxzone
	}
}

func defaultReason(kind string) string {
	switch kind {
	case KindRunning:
		return reasonDefaultRunning
	case KindWorkout:
		return reasonDefaultWorkout
	default:
		return reasonDefaultRoxzone
	}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
