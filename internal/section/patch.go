package section

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/internal/improvement"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/internal/timefmt"
	"github.com/kiranshivaraju/hyroxreport/internal/timeloss"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	maxProseRunes = 200
	noReference   = "—"
)

var clockPattern = regexp.MustCompile(`\d+:\d{2}:\d{2}`)

// Facts are the backend-computed values written over model output.
type Facts struct {
	Data        *reportdata.ReportData
	Improvement *improvement.Result
}

// Patch overwrites every field of args the backend can compute. It never
// fails: when a fact is missing the field is left as the model wrote it.
func Patch(args Args, f Facts) Args {
	switch a := args.(type) {
	case TimeLossArgs:
		return PatchTimeLoss(a, f)
	case SummaryArgs:
		return PatchSummary(a, f)
	case PredictionArgs:
		return PatchPrediction(a, f)
	default:
		return args
	}
}

// PatchTimeLoss rebuilds the loss table from the canonical loss list, the
// comparison tables from the athlete's and top decile's times, and every
// improvement_display from the clamped allocation. Only prose survives.
func PatchTimeLoss(a TimeLossArgs, f Facts) TimeLossArgs {
	d := f.Data
	if !d.Valid() || d.TimeLoss == nil {
		return a
	}
	tl := d.TimeLoss

	prior := make(map[models.Segment]LossItem)
	for _, it := range a.LossOverview.Items {
		if seg, ok := segmentIn(it.Source); ok {
			if _, dup := prior[seg]; !dup {
				prior[seg] = it
			}
		}
	}

	canonical := tl.Canonical()
	items := make([]LossItem, 0, len(canonical))
	for _, c := range canonical {
		p, hasPrior := prior[c.Segment]
		li := LossItem{
			Source:      c.Source,
			SourceDesc:  c.Description,
			LossSeconds: c.LossSeconds,
			LossDisplay: timefmt.Loss(c.LossSeconds),
		}
		if hasPrior {
			li.Source = capProse(p.Source)
			if p.SourceDesc != "" {
				li.SourceDesc = capProse(p.SourceDesc)
			}
			li.DifficultyLevel = min(max(p.DifficultyLevel, 0), 3)
			if li.DifficultyLevel > 0 {
				li.Difficulty = strings.Repeat("⭐", li.DifficultyLevel)
			}
		}
		if alloc, ok := f.allocation(c.Segment); ok {
			li.ImprovementDisplay = alloc.Display
		}
		items = append(items, li)
	}
	a.LossOverview = LossOverview{
		TotalLossSeconds: tl.TotalLossSeconds,
		TotalLossDisplay: timefmt.Loss(tl.TotalLossSeconds),
		Items:            items,
	}

	if best, ok := tl.TheoreticalBestSeconds(d.Athlete); ok && tl.TotalLossSeconds > 0 {
		if loc := clockPattern.FindStringIndex(a.ValueProposition); loc != nil {
			a.ValueProposition = a.ValueProposition[:loc[0]] + timefmt.Clock(best/60) + a.ValueProposition[loc[1]:]
		}
	}
	a.ValueProposition = capProse(a.ValueProposition)
	a.IntroText = capProse(a.IntroText)

	runs := make([]models.Segment, 0, 8)
	runs = append(runs, models.Runs[:]...)
	stations := make([]models.Segment, 0, 8)
	stations = append(stations, models.Stations[:]...)

	a.SegmentComparison = SegmentComparison{
		Running: f.comparisonGroup(a.SegmentComparison.Running, runs, losingSegments(tl.PacingCandidates)),
		Workout: f.comparisonGroup(a.SegmentComparison.Workout, stations, losingSegments(tl.Stations)),
		Roxzone: f.comparisonGroup(a.SegmentComparison.Roxzone, []models.Segment{models.SegmentRoxzone}, transitionSegments(tl.Transition)),
	}
	return a
}

func (f Facts) allocation(s models.Segment) (improvement.Allocation, bool) {
	if f.Improvement == nil {
		return improvement.Allocation{}, false
	}
	return f.Improvement.Find(s)
}

func (f Facts) topDecile(s models.Segment) (float64, bool) {
	fs, ok := f.Data.TopDecile.Get(s.Field())
	if !ok || fs.Avg <= 0 {
		return 0, false
	}
	return fs.Avg, true
}

func losingSegments(items []timeloss.Item) map[models.Segment]bool {
	out := make(map[models.Segment]bool, len(items))
	for _, it := range items {
		out[it.Segment] = true
	}
	return out
}

func transitionSegments(it *timeloss.Item) map[models.Segment]bool {
	if it == nil {
		return nil
	}
	return map[models.Segment]bool{it.Segment: true}
}

// comparisonGroup rebuilds one you/top10/diff table. The model's
// conclusion blocks keep their prose; blocks naming no known segment are
// dropped.
func (f Facts) comparisonGroup(prev *ComparisonGroup, segments []models.Segment, highlight map[models.Segment]bool) *ComparisonGroup {
	athlete := f.Data.Athlete
	g := &ComparisonGroup{TableData: []TableRow{}, ConclusionBlocks: []ConclusionBlock{}}

	for _, s := range segments {
		t, ok := athlete.SegmentTime(s)
		if !ok || t <= 0 {
			continue
		}
		row := TableRow{Segment: s.String(), You: timefmt.Minutes(t), Top10: noReference, Diff: noReference, Highlight: highlight[s]}
		chart := map[string]any{"segment": s.String(), "you_seconds": stats.Round1(t * 60)}
		if ref, ok := f.topDecile(s); ok {
			row.Top10 = timefmt.Minutes(ref)
			row.Diff = timefmt.Delta((ref - t) * 60)
			chart["top10_seconds"] = stats.Round1(ref * 60)
		}
		g.TableData = append(g.TableData, row)
		g.ChartData = append(g.ChartData, chart)
	}

	if prev == nil {
		return g
	}
	for _, b := range prev.ConclusionBlocks {
		s, ok := segmentIn(b.Segment)
		if !ok {
			continue
		}
		out := ConclusionBlock{
			Segment:          s.String(),
			PacingIssue:      capProse(b.PacingIssue),
			ImprovementLogic: capProse(b.ImprovementLogic),
		}
		if t, ok := athlete.SegmentTime(s); ok {
			if ref, ok := f.topDecile(s); ok {
				out.GapVsTop10 = fmt.Sprintf("你的用时 %s，Top 10%% 为 %s，差距 %s。",
					timefmt.Minutes(t), timefmt.Minutes(ref), timefmt.Delta((ref-t)*60))
			}
		}
		if alloc, ok := f.allocation(s); ok {
			out.ImprovementDisplay = alloc.Display
			out.ImprovementLogic = alloc.Reason
		} else {
			out.ImprovementDisplay = timefmt.Improvement(0)
		}
		g.ConclusionBlocks = append(g.ConclusionBlocks, out)
	}
	return g
}

// PatchSummary overwrites the score card numbers with the precomputed
// ranking and re-partitions strengths and weaknesses by percentile.
func PatchSummary(a SummaryArgs, f Facts) SummaryArgs {
	d := f.Data
	if !d.Valid() {
		return a
	}

	if a.RoxscanCard != nil {
		card := *a.RoxscanCard
		card.AthleteName = d.Athlete.Name
		if t, ok := d.Athlete.Value(models.FieldTotal); ok {
			card.TotalTime = timefmt.Clock(t)
		}
		card.OverallRank, card.OverallTotal = rankOf(d.Ranking.Overall)
		card.GenderRank, card.GenderTotal = rankOf(d.Ranking.Gender)
		card.DivisionRank, card.DivisionTotal = rankOf(d.Ranking.Division)
		switch {
		case d.Ranking.Division != nil:
			card.Percentile = d.Ranking.Division.Percentile
		case d.Ranking.Overall != nil:
			card.Percentile = d.Ranking.Overall.Percentile
		}
		card.Tagline = capProse(card.Tagline)
		a.RoxscanCard = &card
	}

	percentile := func(name string) (float64, bool) {
		s, ok := segmentIn(name)
		if !ok {
			return 0, false
		}
		row, ok := d.Comparison.Find(s)
		if !ok {
			return 0, false
		}
		return row.Percentile, true
	}

	a.Strengths, a.Weaknesses = Repartition(a.Strengths, a.Weaknesses, func(n SegmentNote) (float64, bool) {
		if n.Segment != "" {
			return percentile(n.Segment)
		}
		return percentile(n.Text)
	})

	highlights := make([]Highlight, len(a.Highlights))
	for i, h := range a.Highlights {
		side := Side(h.Type)
		if side == SideStrength || side == SideWeakness {
			name := h.Segment
			if name == "" {
				name = h.Title + " " + h.Content
			}
			if p, ok := percentile(name); ok {
				h.Type = string(Classify(p, side))
			}
		}
		h.Content = capProse(h.Content)
		highlights[i] = h
	}
	a.Highlights = highlights
	a.SummaryText = capProse(a.SummaryText)
	return a
}

func rankOf(r *stats.Rank) (int, int) {
	if r == nil {
		return 0, 0
	}
	return r.Rank, r.Total
}

// PatchPrediction overwrites every tier's time and delta with the
// precomputed prediction and drops tiers the model invented.
func PatchPrediction(a PredictionArgs, f Facts) PredictionArgs {
	d := f.Data
	if !d.Valid() || d.Prediction == nil {
		return a
	}

	tiers := make(map[string]TierView, len(reportdata.TierNames))
	var prev map[string]TierView
	dataID := ""
	if a.PredictionTiers != nil {
		prev = a.PredictionTiers.Tiers
		dataID = a.PredictionTiers.DataID
	}
	for _, name := range reportdata.TierNames {
		t, ok := d.Prediction.Tiers[name]
		if !ok {
			continue
		}
		v := prev[name]
		v.Percentile = t.Percentile
		v.TimeSeconds = t.TimeSeconds
		v.TimeDisplay = timefmt.Duration(float64(t.TimeSeconds))
		v.Delta = t.Delta
		v.DeltaDisplay = timefmt.Delta(float64(t.Delta))
		v.Description = capProse(v.Description)
		tiers[name] = v
	}
	a.PredictionTiers = &PredictionTiers{DataID: dataID, Tiers: tiers}

	if _, ok := tiers[a.RecommendedTarget]; !ok {
		a.RecommendedTarget = ""
		if _, ok := tiers[reportdata.TierExpected]; ok {
			a.RecommendedTarget = reportdata.TierExpected
		}
	}
	return a
}

// capProse limits a model-written text field.
func capProse(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxProseRunes {
		return string(r)
	}
	return string(r[:maxProseRunes])
}
