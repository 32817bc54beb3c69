package reportdata

import (
	"github.com/kiranshivaraju/hyroxreport/internal/timefmt"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const source = "report_data_provider"

// Registry exposes ReportData as JSON objects keyed by data type. Each
// object carries _data_type and _source plus type-specific derived fields.
type Registry struct {
	data *ReportData
}

func NewRegistry(d *ReportData) *Registry {
	return &Registry{data: d}
}

// Data returns the underlying ReportData.
func (r *Registry) Data() *ReportData { return r.data }

// Get returns the payload of dataType, or false when it is unavailable.
func (r *Registry) Get(dataType string) (map[string]any, bool) {
	obj := r.object(dataType)
	if obj == nil {
		return nil, false
	}
	m, err := toMap(obj)
	if err != nil {
		return nil, false
	}
	m["_data_type"] = dataType
	m["_source"] = source

	switch dataType {
	case TypeAthleteResult:
		r.enrichAthlete(m)
	case TypePacingAnalysis:
		m["stability_rating"] = StabilityRating(r.data.Pacing.PaceDecayPercent)
	case TypeTimeLossAnalysis:
		r.enrichTimeLoss(m)
	}
	return m, true
}

// Available lists the data types Get can serve, in Types order.
func (r *Registry) Available() []string {
	var out []string
	for _, t := range Types {
		if r.object(t) != nil {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) HasHeartRate() bool {
	return r.data != nil && r.data.HeartRate.Usable()
}

func (r *Registry) object(dataType string) any {
	d := r.data
	if !d.Valid() {
		return nil
	}
	switch dataType {
	case TypeAthleteResult:
		return d.Athlete
	case TypeDivisionStats:
		return nilIf(d.CohortStats == nil, d.CohortStats)
	case TypeSegmentComparison:
		if len(d.Comparison) == 0 {
			return nil
		}
		return map[string]any{"segments": d.Comparison}
	case TypePercentileRanking:
		if d.Ranking.Overall == nil {
			return nil
		}
		return d.Ranking
	case TypePacingAnalysis:
		return nilIf(d.Pacing == nil, d.Pacing)
	case TypePacingConsistency:
		return nilIf(d.Consistency == nil, d.Consistency)
	case TypeTimeLossAnalysis:
		return nilIf(d.TimeLoss == nil, d.TimeLoss)
	case TypeHeartRateData:
		return nilIf(!d.HeartRate.Usable(), d.HeartRate)
	case TypePredictionData:
		return nilIf(d.Prediction == nil, d.Prediction)
	case TypeAthleteHistory:
		return nilIf(d.History == nil, d.History)
	case TypeCohortAnalysis:
		return nilIf(d.Cohort == nil, d.Cohort)
	}
	return nil
}

// nilIf avoids returning typed nil pointers inside an interface.
func nilIf(cond bool, v any) any {
	if cond {
		return nil
	}
	return v
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

func (r *Registry) enrichAthlete(m map[string]any) {
	a := r.data.Athlete
	if t, ok := a.Value(models.FieldTotal); ok && t > 0 {
		m["total_time_formatted"] = timefmt.Clock(t)
		m["total_time_seconds"] = int(t * 60)
	}
	splits := make([]map[string]any, 8)
	for i := 0; i < 8; i++ {
		split := map[string]any{
			"lap":                  i + 1,
			"run_time":             nil,
			"run_time_seconds":     nil,
			"station_name":         models.Stations[i].String(),
			"station_time":         nil,
			"station_time_seconds": nil,
		}
		if v, ok := a.SegmentTime(models.Runs[i]); ok {
			split["run_time"], split["run_time_seconds"] = v, int(v*60)
		}
		if v, ok := a.SegmentTime(models.Stations[i]); ok {
			split["station_time"], split["station_time_seconds"] = v, int(v*60)
		}
		splits[i] = split
	}
	m["splits"] = splits
}

func (r *Registry) enrichTimeLoss(m map[string]any) {
	if r.data.TimeLoss.TotalLossSeconds <= 0 {
		return
	}
	best, ok := r.data.TimeLoss.TheoreticalBestSeconds(r.data.Athlete)
	if !ok {
		return
	}
	m["theoretical_best"] = timefmt.Clock(best / 60)
	m["theoretical_best_seconds"] = best
	m["items"] = r.data.TimeLoss.Canonical()
}
