package section

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/hyroxreport/internal/ai"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// Call is the parsed function call of one section.
type Call struct {
	FunctionName string
	Args         Args
}

// Generator makes the single forced function call of a section.
type Generator struct {
	catalog *Catalog
	oracle  models.Oracle
}

func NewGenerator(catalog *Catalog, oracle models.Oracle) *Generator {
	return &Generator{catalog: catalog, oracle: oracle}
}

// Generate calls the oracle with the section's tool forced and parses the
// arguments. It does not retry; the oracle transport owns retries.
func (g *Generator) Generate(ctx context.Context, in *Input) (Call, error) {
	cfg, ok := g.catalog.Section(in.SectionID)
	if !ok {
		return Call{}, ErrUnknownSection
	}
	model := g.catalog.Model(in.SectionID)

	resp, err := g.oracle.Chat(ctx, models.ChatRequest{
		Model: model.ModelName,
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: cfg.Prompt},
			{Role: models.RoleUser, Content: userMessage(in)},
		},
		Tools:          []models.Tool{cfg.Tool},
		ToolChoice:     models.ForceFunction(cfg.Tool.Function.Name),
		MaxTokens:      model.MaxTokens,
		Temperature:    model.Temperature,
		EnableThinking: model.EnableThinking,
	})
	if err != nil {
		return Call{}, fmt.Errorf("oracle call: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		return Call{}, ErrNoToolCall
	}

	tc := resp.ToolCalls[0]
	for _, c := range resp.ToolCalls {
		if c.Name == cfg.Tool.Function.Name {
			tc = c
			break
		}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(ai.StripCodeFence(tc.Arguments)), &fields); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if fields == nil {
		return Call{}, fmt.Errorf("%w: arguments are not an object", ErrInvalidArguments)
	}
	if err := cfg.Validate(fields); err != nil {
		slog.Warn("section arguments do not match tool schema",
			"section_id", in.SectionID, "function", tc.Name, "error", err)
	}

	args, err := ParseArgs(in.SectionID, fields)
	if err != nil {
		return Call{}, err
	}
	return Call{FunctionName: tc.Name, Args: args}, nil
}

// userMessage is the input message followed by the data_id table.
func userMessage(in *Input) string {
	var b strings.Builder
	b.WriteString(in.Message())
	b.WriteString("\n## data_id 映射\n以下是各数据类型对应的 data_id，在 function call 中引用数据时请使用对应的 data_id:\n")
	for _, it := range in.Items {
		fmt.Fprintf(&b, "- %s: `%s`\n", it.DataType, it.DataID)
	}
	return b.String()
}
