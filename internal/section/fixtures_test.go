package section_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/hyroxreport/internal/ai/mock"
	"github.com/kiranshivaraju/hyroxreport/internal/improvement"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/internal/stats"
	"github.com/kiranshivaraju/hyroxreport/internal/timeloss"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const configDir = "../../configs/report"

func loadCatalog(t *testing.T) *section.Catalog {
	t.Helper()
	c, err := section.LoadCatalog(configDir)
	require.NoError(t, err)
	return c
}

// memSnapshots mints a data_id per Create and remembers what it stored.
type memSnapshots struct {
	mu    sync.Mutex
	types []string
	fail  bool
}

func (m *memSnapshots) Create(_ context.Context, _ uuid.UUID, dataType string, _ any) (uuid.UUID, error) {
	if m.fail {
		return uuid.Nil, errors.New("disk full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, dataType)
	return uuid.New(), nil
}

func (m *memSnapshots) created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.types...)
}

// mapSource serves fixed payloads by data type.
type mapSource map[string]map[string]any

func (s mapSource) Get(dataType string) (map[string]any, bool) {
	p, ok := s[dataType]
	return p, ok
}

// fullSource has every data type except heart rate and history.
func fullSource() mapSource {
	return mapSource{
		reportdata.TypeAthleteResult:     {"name": "Li Wei", "total_time_formatted": "1:21:45", "_source": "report_data_provider"},
		reportdata.TypePercentileRanking: {"overall": map[string]any{"rank": 40, "total": 100}},
		reportdata.TypeSegmentComparison: {"segments": []any{}},
		reportdata.TypeTimeLossAnalysis:  {"total_loss_seconds": 135.0, "theoretical_best": "1:19:30"},
		reportdata.TypePacingAnalysis:    {"pace_decay_percent": 4.2, "strategy_type": "positive"},
		reportdata.TypePacingConsistency: {"lap_swing": 5.1, "consistency_rating": "Excellent"},
		reportdata.TypePredictionData:    {"time_bin": "80-85", "sample_size": 1250, "improvement_rate": 62.5},
		reportdata.TypeCohortAnalysis:    {"target_rank": 40},
	}
}

// sampleAthlete runs 5:00 laps except a 6:00 Run 8, 4:00 stations and an
// 8:45 Roxzone, for 1:21:45 in total.
func sampleAthlete() *models.RaceResult {
	r := &models.RaceResult{Season: 8, Location: "shanghai", Name: "Li Wei", Gender: "male", Division: "open"}
	for i := 0; i < 8; i++ {
		r.RunTimes[i] = models.Float(5.0)
		r.StationTimes[i] = models.Float(4.0)
	}
	r.RunTimes[7] = models.Float(6.0)
	r.RoxzoneTime = models.Float(8.75)
	r.TotalTime = models.Float(81.75)
	return r
}

// sampleLosses: Roxzone 45 s, Run 8 60 s, Sled Push 30 s.
func sampleLosses() *timeloss.Analysis {
	a := &timeloss.Analysis{
		TotalLossSeconds: 135,
		Transition: &timeloss.Item{
			Category: timeloss.CategoryTransition, Segment: models.SegmentRoxzone, Source: "Roxzone",
			Description: "转换区/Roxzone 损耗", LossSeconds: 45, AthleteValue: 8.75, ReferenceValue: 8.0,
		},
		PacingCandidates: []timeloss.Item{{
			Category: timeloss.CategoryPacing, Segment: models.SegmentRun8, Source: "Run 8",
			LossSeconds: 60, AthleteValue: 6.0, ReferenceValue: 5.0,
		}},
		Stations: []timeloss.Item{{
			Category: timeloss.CategoryStation, Segment: models.SegmentSledPush, Source: "Sled Push",
			Description: "Sled Push 技术损耗（vs 平均值）", LossSeconds: 30, AthleteValue: 4.0, ReferenceValue: 3.5,
		}},
	}
	a.Pacing = &a.PacingCandidates[0]
	a.Pacing.Description = "配速崩盘损耗（Run 8 vs 前4段平均）"
	return a
}

func sampleData() *reportdata.ReportData {
	athlete := sampleAthlete()
	return &reportdata.ReportData{
		Season:      8,
		Location:    "shanghai",
		AthleteName: athlete.Name,
		Athlete:     athlete,
		TopDecile: &stats.CohortStats{Size: 10, Fields: map[models.Field]stats.FieldStats{
			models.FieldRun8:     {Count: 10, Avg: 5.8},
			models.FieldSledPush: {Count: 10, Avg: 3.5},
			models.FieldRoxzone:  {Count: 10, Avg: 8.0},
		}},
		Comparison: stats.Comparison{
			{Segment: models.SegmentRun8, Name: "Run 8", Percentile: 80},
			{Segment: models.SegmentSledPush, Name: "Sled Push", Percentile: 20},
			{Segment: models.SegmentSkiErg, Name: "SkiErg", Percentile: 27},
		},
		Ranking: stats.Ranking{
			Overall:  &stats.Rank{Rank: 40, Total: 100, Percentile: 40},
			Gender:   &stats.Rank{Rank: 30, Total: 70, Percentile: 42.9},
			Division: &stats.Rank{Rank: 5, Total: 10, Percentile: 50},
		},
		Prediction: reportdata.Predict(athlete),
		TimeLoss:   sampleLosses(),
	}
}

// sampleFacts runs the estimator against an oracle that proposes 99999 s
// everywhere, so every allocation ends up at its ceiling.
func sampleFacts(t *testing.T) section.Facts {
	t.Helper()
	d := sampleData()
	oracle := mock.NewMockOracle(`{
		"running": [{"segment": "Run 8", "recommended_improvement_seconds": 99999, "reason": "后程保持配速"}],
		"workout": [{"segment": "Sled Push", "recommended_improvement_seconds": 99999, "reason": "低重心发力"}],
		"roxzone": {"segment": "Roxzone", "recommended_improvement_seconds": 99999, "reason": "减少停顿"}
	}`)
	res := improvement.NewEstimator(oracle).Estimate(context.Background(), improvement.Input{
		Athlete:    d.Athlete,
		Losses:     *d.TimeLoss,
		Comparison: d.Comparison,
		TopDecile:  d.TopDecile,
	})
	require.Equal(t, improvement.SourceOracle, res.Source)
	return section.Facts{Data: d, Improvement: &res}
}
