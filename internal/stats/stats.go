// Package stats computes cohort distributions and athlete rankings from a
// flat set of race results. Every function is pure: insufficient data yields
// absent statistics, never zeros.
package stats

import (
	"math"
	"sort"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// DefaultMinDecileSample is the smallest cohort for which a top decile is reported.
const DefaultMinDecileSample = 10

// FieldStats summarises one time field over a cohort. Times are minutes.
type FieldStats struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
}

// CohortStats holds FieldStats for every field with at least one sample.
// A field missing from Fields means the comparison is unavailable.
type CohortStats struct {
	Gender   string                      `json:"gender"`
	Division string                      `json:"division"`
	Size     int                         `json:"size"`
	Fields   map[models.Field]FieldStats `json:"fields"`
}

// Get returns the statistics of f, if any.
func (c *CohortStats) Get(f models.Field) (FieldStats, bool) {
	if c == nil {
		return FieldStats{}, false
	}
	fs, ok := c.Fields[f]
	return fs, ok
}

// Rank is an athlete's standing for one field. Ties share a rank.
type Rank struct {
	Rank       int     `json:"rank"`
	Total      int     `json:"total"`
	Percentile float64 `json:"percentile"`
}

// Aggregator computes cohort statistics. The zero value is not usable; use New.
type Aggregator struct {
	minDecileSample int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMinDecileSample overrides the cohort size below which the top decile is empty.
func WithMinDecileSample(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minDecileSample = n
		}
	}
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{minDecileSample: DefaultMinDecileSample}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Cohort filters results to those matching gender and division. An empty
// gender or division matches everything.
func Cohort(results []models.RaceResult, gender, division string) []models.RaceResult {
	out := make([]models.RaceResult, 0, len(results))
	for _, r := range results {
		if gender != "" && r.Gender != gender {
			continue
		}
		if division != "" && r.Division != division {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CohortStats computes FieldStats for every statistics field over the
// results sharing gender and division.
func (a *Aggregator) CohortStats(results []models.RaceResult, gender, division string) CohortStats {
	cohort := Cohort(results, gender, division)
	cs := CohortStats{
		Gender:   gender,
		Division: division,
		Size:     len(cohort),
		Fields:   make(map[models.Field]FieldStats, len(models.StatsFields)),
	}
	for _, f := range models.StatsFields {
		if fs, ok := Describe(values(cohort, f)); ok {
			cs.Fields[f] = fs
		}
	}
	return cs
}

// Describe computes FieldStats over raw values. Order statistics use the
// nearest-rank index floor(n*q) clamped to [0, n-1].
func Describe(vals []float64) (FieldStats, bool) {
	n := len(vals)
	if n == 0 {
		return FieldStats{}, false
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return FieldStats{
		Count:  n,
		Avg:    sum / float64(n),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Median: sorted[n/2],
		P10:    quantile(sorted, 0.10),
		P25:    quantile(sorted, 0.25),
		P75:    quantile(sorted, 0.75),
	}, true
}

func quantile(sorted []float64, q float64) float64 {
	i := int(math.Floor(float64(len(sorted)) * q))
	if i < 0 {
		i = 0
	}
	if i > len(sorted)-1 {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// PercentileRank ranks athleteTime within the values of field across results.
// Rank is the count of strictly faster values plus one. Returns false when
// no cohort value exists.
func (a *Aggregator) PercentileRank(results []models.RaceResult, athleteTime float64, field models.Field) (Rank, bool) {
	vals := values(results, field)
	if len(vals) == 0 {
		return Rank{}, false
	}
	less := 0
	for _, v := range vals {
		if v < athleteTime {
			less++
		}
	}
	rank := less + 1
	return Rank{
		Rank:       rank,
		Total:      len(vals),
		Percentile: Round1(float64(rank) / float64(len(vals)) * 100),
	}, true
}

// TopDecileCohort returns the fastest ceil(10%) of the cohort by total time,
// or nil when the cohort is smaller than the configured minimum sample.
func (a *Aggregator) TopDecileCohort(results []models.RaceResult, gender, division string) []models.RaceResult {
	cohort := Cohort(results, gender, division)
	finished := make([]models.RaceResult, 0, len(cohort))
	for _, r := range cohort {
		if t, ok := r.Value(models.FieldTotal); ok && t > 0 {
			finished = append(finished, r)
		}
	}
	if len(finished) < a.minDecileSample {
		return nil
	}
	sort.SliceStable(finished, func(i, j int) bool {
		return *finished[i].TotalTime < *finished[j].TotalTime
	})
	k := int(math.Ceil(0.1 * float64(len(finished))))
	if k < 1 {
		k = 1
	}
	return finished[:k]
}

// values collects the present, positive values of f.
func values(results []models.RaceResult, f models.Field) []float64 {
	out := make([]float64, 0, len(results))
	for i := range results {
		if v, ok := results[i].Value(f); ok && v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Round1 rounds to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}
