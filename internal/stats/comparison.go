package stats

import "github.com/kiranshivaraju/hyroxreport/pkg/models"

// ComparisonItem is one row of the athlete-vs-cohort segment table.
type ComparisonItem struct {
	Segment     models.Segment     `json:"-"`
	Name        string             `json:"segment"`
	Type        models.SegmentKind `json:"type"`
	AthleteTime float64            `json:"athlete_time"`
	CohortAvg   float64            `json:"cohort_avg"`
	CohortMin   float64            `json:"cohort_min"`
	Rank        int                `json:"rank"`
	Total       int                `json:"total"`
	Percentile  float64            `json:"percentile"`
	DiffSeconds float64            `json:"diff_seconds"`
	DiffPercent float64            `json:"diff_percent"`
}

// Comparison is the segment table for the 8 runs and 8 stations.
type Comparison []ComparisonItem

// Find returns the row for s.
func (c Comparison) Find(s models.Segment) (ComparisonItem, bool) {
	for _, it := range c {
		if it.Segment == s {
			return it, true
		}
	}
	return ComparisonItem{}, false
}

// Compare builds the segment table of athlete against cohort. Segments the
// athlete did not record, or without cohort statistics, are left out.
func (a *Aggregator) Compare(athlete *models.RaceResult, cohort []models.RaceResult, cs *CohortStats) Comparison {
	segments := make([]models.Segment, 0, 16)
	segments = append(segments, models.Runs[:]...)
	segments = append(segments, models.Stations[:]...)

	out := make(Comparison, 0, len(segments))
	for _, s := range segments {
		t, ok := athlete.SegmentTime(s)
		if !ok || t <= 0 {
			continue
		}
		fs, ok := cs.Get(s.Field())
		if !ok {
			continue
		}
		rank, ok := a.PercentileRank(cohort, t, s.Field())
		if !ok {
			continue
		}
		item := ComparisonItem{
			Segment:     s,
			Name:        s.String(),
			Type:        s.Kind(),
			AthleteTime: t,
			CohortAvg:   fs.Avg,
			CohortMin:   fs.Min,
			Rank:        rank.Rank,
			Total:       rank.Total,
			Percentile:  rank.Percentile,
			DiffSeconds: Round1((t - fs.Avg) * 60),
		}
		if fs.Avg > 0 {
			item.DiffPercent = Round1((t - fs.Avg) / fs.Avg * 100)
		}
		out = append(out, item)
	}
	return out
}

// Ranking is the athlete's total-time standing at three cohort widths.
type Ranking struct {
	Overall  *Rank `json:"overall,omitempty"`
	Gender   *Rank `json:"gender,omitempty"`
	Division *Rank `json:"division,omitempty"`
}

// RankTotal ranks the athlete's total time across the whole race, their
// gender, and their gender+division cohort.
func (a *Aggregator) RankTotal(athlete *models.RaceResult, race []models.RaceResult) Ranking {
	var out Ranking
	t, ok := athlete.Value(models.FieldTotal)
	if !ok {
		return out
	}
	if r, ok := a.PercentileRank(race, t, models.FieldTotal); ok {
		out.Overall = &r
	}
	if r, ok := a.PercentileRank(Cohort(race, athlete.Gender, ""), t, models.FieldTotal); ok {
		out.Gender = &r
	}
	if r, ok := a.PercentileRank(Cohort(race, athlete.Gender, athlete.Division), t, models.FieldTotal); ok {
		out.Division = &r
	}
	return out
}
