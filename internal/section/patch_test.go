package section_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/internal/timefmt"
)

func parse(t *testing.T, sectionID string, raw string) section.Args {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))
	args, err := section.ParseArgs(sectionID, fields)
	require.NoError(t, err)
	return args
}

const timeLossReply = `{
	"value_proposition": "消除全部损耗后，你的理论最佳成绩是 1:10:00",
	"loss_overview": {
		"total_loss_seconds": 999,
		"total_loss_display": "-16:39",
		"items": [
			{"source": "Run 8 配速崩盘", "source_desc": "后程明显掉速", "loss_seconds": 500, "loss_display": "-8:20",
			 "difficulty_level": 5, "improvement_display": "约 999 秒"},
			{"source": "编造的损耗", "loss_seconds": 100}
		]
	},
	"segment_comparison": {
		"running": {
			"table_data": [{"segment": "Run 8", "you": "9:99", "top10": "1:00", "diff": "+8:99"}],
			"conclusion_blocks": [
				{"segment": "Run 8", "pacing_issue": "后程掉速", "improvement_display": "约 999 秒", "improvement_logic": "随便估的"},
				{"segment": "Lap 9", "improvement_display": "约 5 秒"}
			]
		}
	},
	"waterfall_chart": {"title": "损耗瀑布"}
}`

func TestPatchTimeLoss_OverwritesNumbers(t *testing.T) {
	facts := sampleFacts(t)
	args := section.Patch(parse(t, section.SectionTimeLoss, timeLossReply), facts)
	a, ok := args.(section.TimeLossArgs)
	require.True(t, ok)

	ov := a.LossOverview
	assert.Equal(t, 135.0, ov.TotalLossSeconds)
	assert.Equal(t, "-2:15", ov.TotalLossDisplay)
	require.Len(t, ov.Items, 3, "invented rows are dropped")

	var sum float64
	for _, it := range ov.Items {
		sum += it.LossSeconds
	}
	assert.Equal(t, ov.TotalLossSeconds, sum)

	assert.Equal(t, "Roxzone", ov.Items[0].Source)
	assert.Equal(t, "转换区/Roxzone 损耗", ov.Items[0].SourceDesc)
	assert.Equal(t, "约 45 秒", ov.Items[0].ImprovementDisplay)

	run8 := ov.Items[1]
	assert.Equal(t, "Run 8 配速崩盘", run8.Source, "model wording is kept")
	assert.Equal(t, "后程明显掉速", run8.SourceDesc)
	assert.Equal(t, 60.0, run8.LossSeconds)
	assert.Equal(t, "-1:00", run8.LossDisplay)
	assert.Equal(t, 3, run8.DifficultyLevel)
	assert.Equal(t, "⭐⭐⭐", run8.Difficulty)
	assert.Equal(t, "约 12 秒", run8.ImprovementDisplay)

	assert.Equal(t, "约 30 秒", ov.Items[2].ImprovementDisplay)

	assert.Equal(t, "消除全部损耗后，你的理论最佳成绩是 1:19:30", a.ValueProposition)
}

func TestPatchTimeLoss_ConclusionBlocksUseCeiling(t *testing.T) {
	a := section.Patch(parse(t, section.SectionTimeLoss, timeLossReply), sampleFacts(t)).(section.TimeLossArgs)

	running := a.SegmentComparison.Running
	require.NotNil(t, running)
	require.Len(t, running.ConclusionBlocks, 1, "blocks naming no segment are dropped")
	cb := running.ConclusionBlocks[0]
	assert.Equal(t, "Run 8", cb.Segment)
	assert.Equal(t, "约 12 秒", cb.ImprovementDisplay)
	assert.Equal(t, "后程保持配速", cb.ImprovementLogic)
	assert.Equal(t, "后程掉速", cb.PacingIssue)
	assert.Equal(t, "你的用时 6:00，Top 10% 为 5:48，差距 -0:12。", cb.GapVsTop10)

	require.Len(t, running.TableData, 8)
	last := running.TableData[7]
	assert.Equal(t, section.TableRow{Segment: "Run 8", You: "6:00", Top10: "5:48", Diff: "-0:12", Highlight: true}, last)
	assert.Equal(t, "—", running.TableData[0].Top10)
	assert.False(t, running.TableData[0].Highlight)

	require.NotNil(t, a.SegmentComparison.Workout)
	assert.Len(t, a.SegmentComparison.Workout.TableData, 8)
	require.NotNil(t, a.SegmentComparison.Roxzone)
	require.Len(t, a.SegmentComparison.Roxzone.TableData, 1)
	assert.Equal(t, "-0:45", a.SegmentComparison.Roxzone.TableData[0].Diff)

	assert.Equal(t, map[string]any{"title": "损耗瀑布"}, a.Fields()["waterfall_chart"])
}

func TestPatchTimeLoss_WithoutFacts(t *testing.T) {
	args := parse(t, section.SectionTimeLoss, timeLossReply)
	assert.Equal(t, args, section.Patch(args, section.Facts{}))
}

func TestPatchTimeLoss_NoAllocationMeansZero(t *testing.T) {
	facts := sampleFacts(t)
	facts.Improvement = nil
	a := section.Patch(parse(t, section.SectionTimeLoss, timeLossReply), facts).(section.TimeLossArgs)

	cb := a.SegmentComparison.Running.ConclusionBlocks[0]
	assert.Equal(t, timefmt.Improvement(0), cb.ImprovementDisplay)
	assert.Empty(t, a.LossOverview.Items[1].ImprovementDisplay)
}

func TestPatchSummary(t *testing.T) {
	reply := `{
		"summary_text": "整体发挥稳定",
		"roxscan_card": {"total_time": "0:59:00", "overall_rank": 1, "overall_total": 1, "percentile": 1, "level": "精英"},
		"strengths": ["Run 8 耐力出色", {"segment": "SkiErg", "text": "划船节奏稳"}],
		"weaknesses": ["Sled Push 偏慢"],
		"highlights": [
			{"type": "strength", "title": "Run 8", "content": "后程依然强势"},
			{"type": "weakness", "segment": "SkiErg", "content": "可以更快"},
			{"type": "info", "content": "首次参赛"}
		]
	}`
	a := section.Patch(parse(t, section.SectionSummary, reply), section.Facts{Data: sampleData()}).(section.SummaryArgs)

	card := a.RoxscanCard
	require.NotNil(t, card)
	assert.Equal(t, "Li Wei", card.AthleteName)
	assert.Equal(t, "1:21:45", card.TotalTime)
	assert.Equal(t, 40, card.OverallRank)
	assert.Equal(t, 100, card.OverallTotal)
	assert.Equal(t, 30, card.GenderRank)
	assert.Equal(t, 5, card.DivisionRank)
	assert.Equal(t, 10, card.DivisionTotal)
	assert.Equal(t, 50.0, card.Percentile)
	assert.Equal(t, "精英", card.Level)

	// Run 8 is at the 80th percentile, Sled Push at the 20th, SkiErg at
	// the 27th where the model's choice stands.
	require.Len(t, a.Strengths, 2)
	assert.Equal(t, "SkiErg", a.Strengths[0].Segment)
	assert.Equal(t, "Sled Push", a.Strengths[1].Segment)
	require.Len(t, a.Weaknesses, 1)
	assert.Equal(t, "Run 8", a.Weaknesses[0].Segment)

	require.Len(t, a.Highlights, 3)
	assert.Equal(t, "weakness", a.Highlights[0].Type)
	assert.Equal(t, "weakness", a.Highlights[1].Type)
	assert.Equal(t, "info", a.Highlights[2].Type)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, section.SideStrength, section.Classify(25, section.SideWeakness))
	assert.Equal(t, section.SideWeakness, section.Classify(30, section.SideStrength))
	assert.Equal(t, section.SideStrength, section.Classify(27.5, section.SideStrength))
	assert.Equal(t, section.SideWeakness, section.Classify(27.5, section.SideWeakness))
}

func TestRepartition_KeepsUnrankedItems(t *testing.T) {
	pct := map[string]float64{"fast": 10, "slow": 90}
	s, w := section.Repartition([]string{"slow", "unknown"}, []string{"fast"}, func(x string) (float64, bool) {
		p, ok := pct[x]
		return p, ok
	})
	assert.Equal(t, []string{"unknown", "fast"}, s)
	assert.Equal(t, []string{"slow"}, w)
}

func TestPatchPrediction(t *testing.T) {
	reply := `{
		"recommended_target": "legendary",
		"prediction_tiers": {"tiers": {
			"expected": {"label": "稳定发挥", "time_display": "0:00", "time_seconds": 1, "description": "正常状态"},
			"legendary": {"label": "传说", "time_display": "0:30"}
		}},
		"analysis_text": "保持训练"
	}`
	d := sampleData()
	a := section.Patch(parse(t, section.SectionPrediction, reply), section.Facts{Data: d}).(section.PredictionArgs)

	require.NotNil(t, a.PredictionTiers)
	assert.Len(t, a.PredictionTiers.Tiers, len(reportdata.TierNames))
	assert.NotContains(t, a.PredictionTiers.Tiers, "legendary")

	want := d.Prediction.Tiers[reportdata.TierExpected]
	got := a.PredictionTiers.Tiers[reportdata.TierExpected]
	assert.Equal(t, "稳定发挥", got.Label)
	assert.Equal(t, "正常状态", got.Description)
	assert.Equal(t, want.TimeSeconds, got.TimeSeconds)
	assert.Equal(t, timefmt.Duration(float64(want.TimeSeconds)), got.TimeDisplay)
	assert.Equal(t, timefmt.Delta(float64(want.Delta)), got.DeltaDisplay)

	assert.Equal(t, reportdata.TierExpected, a.RecommendedTarget)
}
