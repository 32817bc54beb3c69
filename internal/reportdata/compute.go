package reportdata

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	strategyThreshold = 5.0
	peerWindow        = 5

	defaultAvgImprovement = 150
	defaultVariance       = 600
	defaultImproveRate    = 0.68
)

func valueOrZero(r *models.RaceResult, f models.Field) float64 {
	v, _ := r.Value(f)
	return v
}

func halves(r *models.RaceResult) (first, second float64) {
	for i := 0; i < 8; i++ {
		lap := valueOrZero(r, models.Runs[i].Field()) + valueOrZero(r, models.Stations[i].Field())
		if i < 4 {
			first += lap
		} else {
			second += lap
		}
	}
	return first, second
}

func decay(first, second float64) float64 {
	if first <= 0 {
		return 0
	}
	return (second - first) / first * 100
}

// Pacing compares the athlete's halves and the cohort's average decay.
func Pacing(athlete *models.RaceResult, cohort []models.RaceResult) *PacingAnalysis {
	laps := make([]LapTime, 8)
	for i := 0; i < 8; i++ {
		run := valueOrZero(athlete, models.Runs[i].Field())
		st := valueOrZero(athlete, models.Stations[i].Field())
		laps[i] = LapTime{Lap: i + 1, RunTime: run, StationTime: st, LapTime: run + st, StationName: models.Stations[i].String()}
	}
	first, second := halves(athlete)
	d := decay(first, second)

	strategy := StrategyEven
	switch {
	case d > strategyThreshold:
		strategy = StrategyPositive
	case d < -strategyThreshold:
		strategy = StrategyNegative
	}

	var sum float64
	var n int
	for i := range cohort {
		if _, ok := cohort[i].Value(models.FieldTotal); !ok {
			continue
		}
		f, s := halves(&cohort[i])
		if f > 0 {
			sum += decay(f, s)
			n++
		}
	}
	var avg float64
	if n > 0 {
		avg = sum / float64(n)
	}

	return &PacingAnalysis{
		FirstHalfTime:    first,
		SecondHalfTime:   second,
		HalfDiffSeconds:  stats.Round1((second - first) * 60),
		PaceDecayPercent: stats.Round1(d),
		AvgPaceDecay:     stats.Round1(avg),
		StrategyType:     strategy,
		LapTimes:         laps,
	}
}

// StabilityRating grades the absolute pace decay.
func StabilityRating(decayPercent float64) string {
	d := math.Abs(decayPercent)
	switch {
	case d < 5:
		return "excellent"
	case d < 10:
		return "good"
	case d < 15:
		return "fair"
	default:
		return "poor"
	}
}

// ConsistencyRating grades the average lap-to-lap swing in seconds.
func ConsistencyRating(swing float64) string {
	switch {
	case swing < 10:
		return "Excellent"
	case swing < 20:
		return "Consistent"
	case swing < 35:
		return "Variable"
	default:
		return "Erratic"
	}
}

// Consistency measures the run legs' variation. Returns nil with fewer
// than two recorded runs.
func Consistency(athlete *models.RaceResult) *PacingConsistency {
	var runs []float64
	var laps []int
	for i, s := range models.Runs {
		if v, ok := athlete.Value(s.Field()); ok && v > 0 {
			runs = append(runs, v*60)
			laps = append(laps, i+1)
		}
	}
	if len(runs) < 2 {
		return nil
	}

	var swingSum, maxSwing float64
	for i := 1; i < len(runs); i++ {
		sw := math.Abs(runs[i] - runs[i-1])
		swingSum += sw
		maxSwing = math.Max(maxSwing, sw)
	}
	avgSwing := swingSum / float64(len(runs)-1)

	middle := runs
	if len(runs) >= 8 {
		middle = runs[1:7]
	}
	avgMiddle := mean(middle)

	fastest, slowest := 0, 0
	for i := range runs {
		if runs[i] < runs[fastest] {
			fastest = i
		}
		if runs[i] > runs[slowest] {
			slowest = i
		}
	}
	spread := runs[slowest] - runs[fastest]
	cohortSpread := spread * 0.85

	avg := mean(runs)
	devs := make([]LapDeviation, len(runs))
	for i, rt := range runs {
		devs[i] = LapDeviation{Lap: laps[i], Time: stats.Round1(rt), Deviation: stats.Round1(rt - avg)}
	}

	return &PacingConsistency{
		LapSwing:          stats.Round1(avgSwing),
		MaxLapSwing:       stats.Round1(maxSwing),
		AvgPaceMiddle:     stats.Round1(avgMiddle),
		Spread:            stats.Round1(spread),
		CohortAvgSpread:   stats.Round1(cohortSpread),
		VsCohort:          stats.Round1(spread - cohortSpread),
		ConsistencyRating: ConsistencyRating(avgSwing),
		LapDeviations:     devs,
		FastestLap:        laps[fastest],
		SlowestLap:        laps[slowest],
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

func finishers(cohort []models.RaceResult) []models.RaceResult {
	out := make([]models.RaceResult, 0, len(cohort))
	for _, r := range cohort {
		if t, ok := r.Value(models.FieldTotal); ok && t > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].TotalTime < *out[j].TotalTime })
	return out
}

// Peers returns the finishers ranked just ahead of and behind the athlete.
// The athlete is found by name; the first finisher with the same total time
// stands in only when the name is absent from the cohort.
func Peers(athlete *models.RaceResult, cohort []models.RaceResult) *CohortAnalysis {
	t, ok := athlete.Value(models.FieldTotal)
	if !ok {
		return nil
	}
	rows := finishers(cohort)
	idx := slices.IndexFunc(rows, func(r models.RaceResult) bool { return r.Name == athlete.Name })
	if idx < 0 {
		idx = slices.IndexFunc(rows, func(r models.RaceResult) bool { return math.Abs(*r.TotalTime-t) < 0.001 })
	}
	if idx < 0 {
		return nil
	}

	out := &CohortAnalysis{TargetRank: idx + 1, PeersAhead: []Peer{}, PeersBehind: []Peer{}}
	for i := max(0, idx-peerWindow); i < idx; i++ {
		out.PeersAhead = append(out.PeersAhead, Peer{Name: rows[i].Name, TotalTime: *rows[i].TotalTime, Rank: i + 1})
	}
	for i := idx + 1; i < len(rows) && i <= idx+peerWindow; i++ {
		out.PeersBehind = append(out.PeersBehind, Peer{Name: rows[i].Name, TotalTime: *rows[i].TotalTime, Rank: i + 1})
	}
	if idx > 0 {
		gap := stats.Round1((t - *rows[idx-1].TotalTime) * 60)
		out.TimeToNextLevel = &gap
	}
	out.PeerRange = fmt.Sprintf("排名 %d-%d", max(1, idx+1-peerWindow), min(len(rows), idx+1+peerWindow))
	return out
}

// DivisionRank is the 1-based position of name among the race's finishers
// of gender and division, and the number of such finishers. The rank is 0
// when name did not finish there.
func DivisionRank(race []models.RaceResult, name, gender, division string) (int, int) {
	rows := finishers(stats.Cohort(race, gender, division))
	for i := range rows {
		if rows[i].Name == name {
			return i + 1, len(rows)
		}
	}
	return 0, len(rows)
}

// Trend compares the three most recent races with the three oldest ones.
func Trend(races []HistoryRace) string {
	if len(races) < 2 {
		return ""
	}
	var recent, older []float64
	for _, r := range races[:min(3, len(races))] {
		if r.TotalTime > 0 {
			recent = append(recent, r.TotalTime)
		}
	}
	for _, r := range races[max(0, len(races)-3):] {
		if r.TotalTime > 0 {
			older = append(older, r.TotalTime)
		}
	}
	if len(recent) == 0 || len(older) == 0 {
		return ""
	}
	ra, oa := mean(recent), mean(older)
	switch {
	case ra < oa*0.98:
		return TrendImproving
	case ra > oa*1.02:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// NewHistory summarises races, newest first.
func NewHistory(races []HistoryRace) *AthleteHistory {
	h := &AthleteHistory{Races: races, TotalRaces: len(races), ImprovementTrend: Trend(races)}
	if h.Races == nil {
		h.Races = []HistoryRace{}
	}
	for _, r := range races {
		if r.TotalTime <= 0 {
			continue
		}
		if h.BestTime == nil || r.TotalTime < *h.BestTime {
			bt, br := r.TotalTime, r.DivisionRank
			h.BestTime, h.BestRank = &bt, &br
		}
	}
	return h
}

// TimeBin is the 5-minute bin containing minutes, e.g. "65-70".
func TimeBin(minutes float64) string {
	start := int(math.Floor(minutes/5)) * 5
	return fmt.Sprintf("%d-%d", start, start+5)
}

// Predict builds the default next-race tiers around the athlete's time.
func Predict(athlete *models.RaceResult) *Prediction {
	t, ok := athlete.Value(models.FieldTotal)
	if !ok || t <= 0 {
		return nil
	}
	current := int(t * 60)
	deltas := map[string]struct{ pct, delta int }{
		TierExcellent: {5, -defaultAvgImprovement - 600},
		TierGreat:     {25, -defaultAvgImprovement - 300},
		TierExpected:  {50, -defaultAvgImprovement},
		TierSubpar:    {75, -defaultAvgImprovement + 300},
		TierPoor:      {95, -defaultAvgImprovement + 600},
	}
	tiers := make(map[string]Tier, len(deltas))
	for name, d := range deltas {
		tiers[name] = Tier{Percentile: d.pct, TimeSeconds: current + d.delta, Delta: d.delta}
	}
	return &Prediction{
		TimeBin:            TimeBin(t),
		CurrentTimeSeconds: current,
		ImprovementRate:    defaultImproveRate,
		AvgImprovement:     defaultAvgImprovement,
		Variance:           defaultVariance,
		Tiers:              tiers,
		DistributionCurve:  []float64{},
	}
}
