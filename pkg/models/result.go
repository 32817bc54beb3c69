package models

// RaceResult is one athlete's record for a single race, as ingested by the
// results sync job. Times are minutes; a nil time means the split was not
// recorded. Read-only to the report pipeline.
type RaceResult struct {
	ID          int64  `json:"id"`
	Season      int    `json:"season"`
	Location    string `json:"location"`
	EventID     string `json:"event_id,omitempty"`
	EventName   string `json:"event_name,omitempty"`
	Name        string `json:"name"`
	Nationality string `json:"nationality,omitempty"`
	Gender      string `json:"gender"`
	Division    string `json:"division"`
	AgeGroup    string `json:"age_group,omitempty"`

	TotalTime   *float64 `json:"total_time"`
	RunTime     *float64 `json:"run_time"`
	WorkTime    *float64 `json:"work_time"`
	RoxzoneTime *float64 `json:"roxzone_time"`

	// RunTimes[i] and StationTimes[i] form lap i+1.
	RunTimes     [8]*float64 `json:"run_times"`
	StationTimes [8]*float64 `json:"station_times"`
}

// Value returns the time stored under f and whether it is present.
func (r *RaceResult) Value(f Field) (float64, bool) {
	p := r.ptr(f)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SegmentTime returns the athlete's time for s, if recorded.
func (r *RaceResult) SegmentTime(s Segment) (float64, bool) {
	return r.Value(s.Field())
}

func (r *RaceResult) ptr(f Field) *float64 {
	switch f {
	case FieldTotal:
		return r.TotalTime
	case FieldRun:
		return r.RunTime
	case FieldWork:
		return r.WorkTime
	case FieldRoxzone:
		return r.RoxzoneTime
	}
	for i, s := range Runs {
		if s.Field() == f {
			return r.RunTimes[i]
		}
	}
	for i, s := range Stations {
		if s.Field() == f {
			return r.StationTimes[i]
		}
	}
	return nil
}

// Float returns a pointer to v, for building results in code and tests.
func Float(v float64) *float64 {
	return &v
}
