// Package reportdata precomputes every data object a report's sections may
// cite, once per generation, and exposes them by data type.
package reportdata

import (
	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/internal/timeloss"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// Data types a section may request.
const (
	TypeAthleteResult     = "athlete_result"
	TypeDivisionStats     = "division_stats"
	TypeSegmentComparison = "segment_comparison"
	TypePercentileRanking = "percentile_ranking"
	TypePacingAnalysis    = "pacing_analysis"
	TypePacingConsistency = "pacing_consistency"
	TypeTimeLossAnalysis  = "time_loss_analysis"
	TypeHeartRateData     = "heart_rate_data"
	TypePredictionData    = "prediction_data"
	TypeAthleteHistory    = "athlete_history"
	TypeCohortAnalysis    = "cohort_analysis"
)

// Types lists every known data type in a stable order.
var Types = []string{
	TypeAthleteResult, TypeDivisionStats, TypeSegmentComparison, TypePercentileRanking,
	TypePacingAnalysis, TypePacingConsistency, TypeTimeLossAnalysis, TypeHeartRateData,
	TypePredictionData, TypeAthleteHistory, TypeCohortAnalysis,
}

// ReportData is the precomputed input of one report generation. Athlete is
// nil only when Prepare failed; every other field may be absent, in which
// case Errors says why.
type ReportData struct {
	Season      int
	Location    string
	AthleteName string

	Athlete     *models.RaceResult
	Race        []models.RaceResult
	CohortStats *stats.CohortStats
	TopDecile   *stats.CohortStats
	Comparison  stats.Comparison
	Ranking     stats.Ranking
	Pacing      *PacingAnalysis
	Consistency *PacingConsistency
	Cohort      *CohortAnalysis
	History     *AthleteHistory
	Prediction  *Prediction
	TimeLoss    *timeloss.Analysis
	HeartRate   *HeartRate

	Errors map[string]string
}

// Valid reports whether the athlete's own result is available.
func (d *ReportData) Valid() bool {
	return d != nil && d.Athlete != nil
}

func (d *ReportData) fail(dataType string, err error) {
	if d.Errors == nil {
		d.Errors = make(map[string]string)
	}
	d.Errors[dataType] = err.Error()
}

// LapTime is one run plus its following station.
type LapTime struct {
	Lap         int     `json:"lap"`
	RunTime     float64 `json:"run_time"`
	StationTime float64 `json:"station_time"`
	LapTime     float64 `json:"lap_time"`
	StationName string  `json:"station_name"`
}

const (
	StrategyPositive = "positive"
	StrategyNegative = "negative"
	StrategyEven     = "even"
)

// PacingAnalysis compares the first four laps with the last four.
type PacingAnalysis struct {
	FirstHalfTime    float64   `json:"first_half_time"`
	SecondHalfTime   float64   `json:"second_half_time"`
	HalfDiffSeconds  float64   `json:"half_diff_seconds"`
	PaceDecayPercent float64   `json:"pace_decay_percent"`
	AvgPaceDecay     float64   `json:"avg_pace_decay"`
	StrategyType     string    `json:"strategy_type"`
	LapTimes         []LapTime `json:"lap_times"`
}

type LapDeviation struct {
	Lap       int     `json:"lap"`
	Time      float64 `json:"time"`
	Deviation float64 `json:"deviation"`
}

// PacingConsistency measures lap-to-lap variation of the run legs, in seconds.
type PacingConsistency struct {
	LapSwing          float64        `json:"lap_swing"`
	MaxLapSwing       float64        `json:"max_lap_swing"`
	AvgPaceMiddle     float64        `json:"avg_pace_middle"`
	Spread            float64        `json:"spread"`
	CohortAvgSpread   float64        `json:"cohort_avg_spread"`
	VsCohort          float64        `json:"vs_cohort"`
	ConsistencyRating string         `json:"consistency_rating"`
	LapDeviations     []LapDeviation `json:"lap_deviations"`
	FastestLap        int            `json:"fastest_lap"`
	SlowestLap        int            `json:"slowest_lap"`
}

type Peer struct {
	Name      string  `json:"name"`
	TotalTime float64 `json:"total_time"`
	Rank      int     `json:"rank"`
}

// CohortAnalysis places the athlete among the finishers nearest in rank.
type CohortAnalysis struct {
	TargetRank      int      `json:"target_rank"`
	PeerRange       string   `json:"peer_range"`
	PeersAhead      []Peer   `json:"peers_ahead"`
	PeersBehind     []Peer   `json:"peers_behind"`
	TimeToNextLevel *float64 `json:"time_to_next_level"`
}

type HistoryRace struct {
	Season           int     `json:"season"`
	Location         string  `json:"location"`
	Division         string  `json:"division"`
	TotalTime        float64 `json:"total_time"`
	DivisionRank     int     `json:"division_rank"`
	ParticipantCount int     `json:"participant_count"`
}

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// AthleteHistory is the athlete's recent races, newest first.
type AthleteHistory struct {
	Races            []HistoryRace `json:"races"`
	TotalRaces       int           `json:"total_races"`
	BestTime         *float64      `json:"best_time,omitempty"`
	BestRank         *int          `json:"best_rank,omitempty"`
	ImprovementTrend string        `json:"improvement_trend,omitempty"`
}

type Tier struct {
	Percentile  int `json:"percentile"`
	TimeSeconds int `json:"time_seconds"`
	Delta       int `json:"delta"`
}

// Tier names, fastest first.
const (
	TierExcellent = "excellent"
	TierGreat     = "great"
	TierExpected  = "expected"
	TierSubpar    = "subpar"
	TierPoor      = "poor"
)

var TierNames = []string{TierExcellent, TierGreat, TierExpected, TierSubpar, TierPoor}

// Prediction is the next-race outlook for athletes in the same 5-minute bin.
type Prediction struct {
	TimeBin            string          `json:"time_bin"`
	CurrentTimeSeconds int             `json:"current_time_seconds"`
	SampleSize         int             `json:"sample_size"`
	ImprovementRate    float64         `json:"improvement_rate"`
	AvgImprovement     int             `json:"avg_improvement"`
	Variance           int             `json:"variance"`
	Tiers              map[string]Tier `json:"tiers"`
	DistributionCurve  []float64       `json:"distribution_curve"`
}

type HeartRateZone struct {
	Zone    string  `json:"zone"`
	Seconds float64 `json:"seconds"`
	Percent float64 `json:"percent"`
}

type HeartRateSegment struct {
	Segment      string  `json:"segment"`
	AvgHeartRate float64 `json:"avg_heart_rate"`
	MaxHeartRate float64 `json:"max_heart_rate"`
}

type HeartRatePoint struct {
	OffsetSeconds float64 `json:"offset_seconds"`
	BPM           float64 `json:"bpm"`
}

// HeartRate is athlete-supplied heart-rate data already mapped onto the race.
type HeartRate struct {
	AvgHeartRate float64            `json:"avg_heart_rate,omitempty"`
	MaxHeartRate float64            `json:"max_heart_rate,omitempty"`
	Zones        []HeartRateZone    `json:"zones,omitempty"`
	Segments     []HeartRateSegment `json:"segments,omitempty"`
	DataPoints   []HeartRatePoint   `json:"data_points,omitempty"`
}

// Usable reports whether h carries any measurement.
func (h *HeartRate) Usable() bool {
	return h != nil && (h.AvgHeartRate > 0 || len(h.DataPoints) > 0 || len(h.Segments) > 0)
}
