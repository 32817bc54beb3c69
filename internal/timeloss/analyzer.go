// Package timeloss attributes an athlete's recoverable time to the
// transition zone, late-race pacing and individual stations.
package timeloss

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	CategoryTransition = "transition"
	CategoryPacing     = "pacing"
	CategoryStation    = "station"

	ReferenceAverage   = "avg"
	ReferenceTop25     = "p25"
	ReferenceEarlyRuns = "early_runs_avg"
)

const (
	defaultPacingThreshold  = 20.0
	defaultStationThreshold = 5.0
)

// Item is one loss attribution. LossSeconds is rounded to 0.1 s; the
// reference and athlete values are minutes.
type Item struct {
	Category       string         `json:"category"`
	Segment        models.Segment `json:"-"`
	Source         string         `json:"source"`
	Description    string         `json:"description"`
	LossSeconds    float64        `json:"loss_seconds"`
	Reference      string         `json:"reference"`
	ReferenceValue float64        `json:"reference_value"`
	AthleteValue   float64        `json:"athlete_value"`
}

// Analysis is the loss breakdown of one result. Only the headline pacing
// item counts toward the total; the remaining qualifying late runs are kept
// in PacingCandidates and named in the headline's description.
type Analysis struct {
	TotalLossSeconds float64 `json:"total_loss_seconds"`
	Transition       *Item   `json:"transition_loss,omitempty"`
	Pacing           *Item   `json:"pacing_loss,omitempty"`
	PacingCandidates []Item  `json:"pacing_losses"`
	Stations         []Item  `json:"station_losses"`
}

// Canonical returns the ordered loss list whose LossSeconds sum to
// TotalLossSeconds: transition, pacing headline, then stations by loss.
func (a Analysis) Canonical() []Item {
	out := make([]Item, 0, len(a.Stations)+2)
	if a.Transition != nil {
		out = append(out, *a.Transition)
	}
	if a.Pacing != nil {
		out = append(out, *a.Pacing)
	}
	return append(out, a.Stations...)
}

// Find returns the canonical item attributed to s.
func (a Analysis) Find(s models.Segment) (Item, bool) {
	for _, it := range a.Canonical() {
		if it.Segment == s {
			return it, true
		}
	}
	return Item{}, false
}

// Analyzer computes loss breakdowns against cohort statistics.
type Analyzer struct {
	pacingThreshold  float64
	stationThreshold float64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPacingThreshold sets the minimum late-run loss, in seconds.
func WithPacingThreshold(sec float64) Option {
	return func(a *Analyzer) { a.pacingThreshold = sec }
}

// WithStationThreshold sets the minimum station loss, in seconds.
func WithStationThreshold(sec float64) Option {
	return func(a *Analyzer) { a.stationThreshold = sec }
}

// New creates an Analyzer with the 20 s pacing and 5 s station thresholds.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		pacingThreshold:  defaultPacingThreshold,
		stationThreshold: defaultStationThreshold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze attributes the athlete's losses. Fields without cohort statistics
// or without an athlete time contribute nothing.
func (a *Analyzer) Analyze(athlete *models.RaceResult, cs *stats.CohortStats) Analysis {
	out := Analysis{
		Transition:       a.transition(athlete, cs),
		PacingCandidates: a.pacing(athlete),
		Stations:         a.stations(athlete, cs),
	}
	if len(out.PacingCandidates) > 0 {
		head := out.PacingCandidates[0]
		head.Description = pacingDescription(out.PacingCandidates)
		out.Pacing = &head
	}

	var total float64
	for _, it := range out.Canonical() {
		total += it.LossSeconds
	}
	out.TotalLossSeconds = stats.Round1(total)
	return out
}

func (a *Analyzer) transition(athlete *models.RaceResult, cs *stats.CohortStats) *Item {
	t, ok := athlete.Value(models.FieldRoxzone)
	if !ok || t <= 0 {
		return nil
	}
	fs, ok := cs.Get(models.FieldRoxzone)
	if !ok {
		return nil
	}
	loss := stats.Round1((t - fs.Avg) * 60)
	if loss <= 0 {
		return nil
	}
	return &Item{
		Category:       CategoryTransition,
		Segment:        models.SegmentRoxzone,
		Source:         models.SegmentRoxzone.String(),
		Description:    "转换区/Roxzone 损耗",
		LossSeconds:    loss,
		Reference:      ReferenceAverage,
		ReferenceValue: fs.Avg,
		AthleteValue:   t,
	}
}

// pacing compares runs 5-8 against the mean of the recorded runs 1-4 and
// returns the qualifying late runs, largest loss first.
func (a *Analyzer) pacing(athlete *models.RaceResult) []Item {
	var sum float64
	var n int
	for _, s := range models.Runs[:4] {
		if t, ok := athlete.SegmentTime(s); ok && t > 0 {
			sum += t
			n++
		}
	}
	if n == 0 {
		return nil
	}
	early := sum / float64(n)

	var out []Item
	for _, s := range models.Runs[4:] {
		t, ok := athlete.SegmentTime(s)
		if !ok || t <= 0 {
			continue
		}
		raw := (t - early) * 60
		if raw <= a.pacingThreshold {
			continue
		}
		out = append(out, Item{
			Category:       CategoryPacing,
			Segment:        s,
			Source:         s.String(),
			LossSeconds:    stats.Round1(raw),
			Reference:      ReferenceEarlyRuns,
			ReferenceValue: early,
			AthleteValue:   t,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LossSeconds > out[j].LossSeconds })
	return out
}

func pacingDescription(items []Item) string {
	head := items[0]
	if len(items) == 1 {
		return fmt.Sprintf("配速崩盘损耗（%s vs 前4段平均）", head.Source)
	}
	others := make([]string, 0, len(items)-1)
	for _, it := range items[1:] {
		others = append(others, it.Source)
	}
	return fmt.Sprintf("配速崩盘损耗（%s vs 前4段平均，%s也有损耗）", head.Source, strings.Join(others, ", "))
}

func (a *Analyzer) stations(athlete *models.RaceResult, cs *stats.CohortStats) []Item {
	var out []Item
	for _, s := range models.Stations {
		t, ok := athlete.SegmentTime(s)
		if !ok || t <= 0 {
			continue
		}
		fs, ok := cs.Get(s.Field())
		if !ok {
			continue
		}

		ref, refValue, label := ReferenceAverage, fs.Avg, "平均值"
		gap := (t - fs.Avg) * 60
		if gap <= 0 {
			ref, refValue, label = ReferenceTop25, fs.P25, "TOP25%"
			gap = (t - fs.P25) * 60
		}
		if gap <= a.stationThreshold {
			continue
		}
		out = append(out, Item{
			Category:       CategoryStation,
			Segment:        s,
			Source:         s.String(),
			Description:    fmt.Sprintf("%s 技术损耗（vs %s）", s, label),
			LossSeconds:    stats.Round1(gap),
			Reference:      ref,
			ReferenceValue: refValue,
			AthleteValue:   t,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LossSeconds > out[j].LossSeconds })
	return out
}

// TheoreticalBestSeconds is the athlete's total time minus every canonical loss.
func (a Analysis) TheoreticalBestSeconds(athlete *models.RaceResult) (float64, bool) {
	t, ok := athlete.Value(models.FieldTotal)
	if !ok {
		return 0, false
	}
	return stats.Round1(t*60 - a.TotalLossSeconds), true
}
