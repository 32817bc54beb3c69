package section_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/hyroxreport/internal/ai/mock"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

func buildInput(t *testing.T, c *section.Catalog, sectionID string) *section.Input {
	t.Helper()
	in, err := section.NewBuilder(c, &memSnapshots{}).Build(context.Background(), buildRequest(sectionID, fullSource()))
	require.NoError(t, err)
	return in
}

func TestGenerate_ForcesSectionTool(t *testing.T) {
	c := loadCatalog(t)
	oracle := mock.NewToolCallOracle(map[string]string{
		"generate_training": "```json\n" + `{"weakness_analysis": [{"title": "Run 8"}], "key_workouts": [{"name": "间歇跑"}]}` + "\n```",
	})
	in := buildInput(t, c, section.SectionTraining)

	call, err := section.NewGenerator(c, oracle).Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "generate_training", call.FunctionName)
	assert.Contains(t, call.Args.Fields(), "key_workouts")

	reqs := oracle.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "generate_training", req.ToolChoice.Function.Name)
	assert.Equal(t, 6144, req.MaxTokens)
	assert.Equal(t, 0.5, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "## data_id 映射")
	for dt, id := range in.DataIDs() {
		assert.Contains(t, req.Messages[1].Content, "- "+dt+": `"+id+"`")
	}
}

func TestGenerate_Errors(t *testing.T) {
	c := loadCatalog(t)
	in := buildInput(t, c, section.SectionTraining)

	t.Run("no tool call", func(t *testing.T) {
		_, err := section.NewGenerator(c, mock.NewMockOracle("我来写训练建议")).Generate(context.Background(), in)
		assert.ErrorIs(t, err, section.ErrNoToolCall)
	})

	t.Run("invalid json", func(t *testing.T) {
		oracle := mock.NewToolCallOracle(map[string]string{"generate_training": `{"weakness_analysis": [`})
		_, err := section.NewGenerator(c, oracle).Generate(context.Background(), in)
		assert.ErrorIs(t, err, section.ErrInvalidArguments)
	})

	t.Run("not an object", func(t *testing.T) {
		oracle := mock.NewToolCallOracle(map[string]string{"generate_training": `null`})
		_, err := section.NewGenerator(c, oracle).Generate(context.Background(), in)
		assert.ErrorIs(t, err, section.ErrInvalidArguments)
	})

	t.Run("oracle failure", func(t *testing.T) {
		_, err := section.NewGenerator(c, mock.NewFailingOracle(errors.New("503"))).Generate(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestGenerate_SchemaMismatchStillParses(t *testing.T) {
	c := loadCatalog(t)
	oracle := mock.NewToolCallOracle(map[string]string{"generate_training": `{"nutrition_tips": ["补水"]}`})

	call, err := section.NewGenerator(c, oracle).Generate(context.Background(), buildInput(t, c, section.SectionTraining))
	require.NoError(t, err)
	assert.Equal(t, []any{"补水"}, call.Args.Fields()["nutrition_tips"])
}

func TestParseArgs(t *testing.T) {
	t.Run("summary notes as strings", func(t *testing.T) {
		args, err := section.ParseArgs(section.SectionSummary, map[string]any{
			"summary_text": "整体不错",
			"strengths":    []any{"Sled Push 爆发力强", map[string]any{"segment": "Run 1", "text": "起步稳"}},
			"mood":         "happy",
		})
		require.NoError(t, err)
		s, ok := args.(section.SummaryArgs)
		require.True(t, ok)
		require.Len(t, s.Strengths, 2)
		assert.Equal(t, section.SegmentNote{Segment: "Sled Push", Text: "Sled Push 爆发力强"}, s.Strengths[0])
		assert.Equal(t, "Run 1", s.Strengths[1].Segment)
		assert.Equal(t, "happy", s.Fields()["mood"], "unknown keys survive")
	})

	t.Run("wrong type fails", func(t *testing.T) {
		_, err := section.ParseArgs(section.SectionTimeLoss, map[string]any{"loss_overview": "lots"})
		assert.ErrorIs(t, err, section.ErrInvalidArguments)
	})

	t.Run("computed fields coerced", func(t *testing.T) {
		args, err := section.ParseArgs(section.SectionPrediction, map[string]any{
			"prediction_tiers": map[string]any{"tiers": map[string]any{
				"expected": map[string]any{"time_seconds": " 3600 ", "delta": 12.6, "percentile": "n/a", "time_display": 3600.0},
			}},
		})
		require.NoError(t, err)
		p, ok := args.(section.PredictionArgs)
		require.True(t, ok)
		tier := p.PredictionTiers.Tiers["expected"]
		assert.Equal(t, 3600, tier.TimeSeconds)
		assert.Equal(t, 13, tier.Delta)
		assert.Zero(t, tier.Percentile, "unparseable values are dropped")
		assert.Empty(t, tier.TimeDisplay)
	})

	t.Run("untyped section", func(t *testing.T) {
		args, err := section.ParseArgs(section.SectionTraining, map[string]any{"x": 1.0})
		require.NoError(t, err)
		assert.Equal(t, section.GenericArgs{"x": 1.0}, args)
	})
}
