package section

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Data types and ids of items the pipeline adds on top of the catalog inputs.
const (
	DataTypeImprovement = "improvement_agent_result"

	improvementName     = "提升空间Agent结果（必用）"
	improvementDescribe = "由 Agent 根据 1.1 损耗与 Top 10% 对比计算出的各区域可提升时间及理由。1.1 的 improvement_display 与 1.2 conclusion_blocks 的 improvement_display、improvement_logic 必须据此填写，不得使用其他口径。"

	degradedNotice = "\n**注意**: 当前缺少心率数据，请使用降级分析模式。\n"
)

// DataSource serves precomputed payloads by data type.
// reportdata.Registry implements it.
type DataSource interface {
	Get(dataType string) (map[string]any, bool)
}

// Snapshotter persists a payload and returns its data_id.
// snapshot.Store implements it.
type Snapshotter interface {
	Create(ctx context.Context, reportID uuid.UUID, dataType string, content any) (uuid.UUID, error)
}

// Item is one data object shown to the model.
type Item struct {
	DataID    string
	DataType  string
	Name      string
	Describe  string
	Summary   string
	KeyParams map[string]any
	Details   map[string]any
}

// Input is the prompt payload of one section.
type Input struct {
	SectionID string
	Items     []Item
	Degraded  bool
}

// DataIDs maps each data type to the data_id it was snapshotted under.
func (in *Input) DataIDs() map[string]string {
	out := make(map[string]string, len(in.Items))
	for _, it := range in.Items {
		out[it.DataType] = it.DataID
	}
	return out
}

// Message renders the user message listing every item.
func (in *Input) Message() string {
	var b strings.Builder
	b.WriteString("## 输入数据\n")
	for _, it := range in.Items {
		fmt.Fprintf(&b, "\n### %s\n", it.Name)
		fmt.Fprintf(&b, "- **data_id**: `%s`\n", it.DataID)
		fmt.Fprintf(&b, "- **描述**: %s\n", it.Describe)
		if it.Summary != "" {
			fmt.Fprintf(&b, "- **摘要**: %s\n", it.Summary)
		}
		if len(it.KeyParams) > 0 {
			keys := sortedKeys(it.KeyParams)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(it.KeyParams[k])))
			}
			fmt.Fprintf(&b, "- **关键参数**: %s\n", strings.Join(parts, ", "))
		}
		if len(it.Details) > 0 {
			raw, err := json.MarshalIndent(it.Details, "", "  ")
			if err == nil {
				fmt.Fprintf(&b, "- **数据明细**:\n```json\n%s\n```\n", raw)
			}
		}
	}
	if in.Degraded {
		b.WriteString(degradedNotice)
	}
	return b.String()
}

// TemplateContext is the report-level values summary templates may use.
type TemplateContext struct {
	Season      int
	Location    string
	AthleteName string
	Gender      string
	Division    string
}

func (c TemplateContext) values() map[string]any {
	return map[string]any{
		"season":       c.Season,
		"location":     c.Location,
		"athlete_name": c.AthleteName,
		"gender":       c.Gender,
		"division":     c.Division,
	}
}

// Builder assembles section inputs, snapshotting every payload it embeds.
type Builder struct {
	catalog   *Catalog
	snapshots Snapshotter
}

func NewBuilder(catalog *Catalog, snapshots Snapshotter) *Builder {
	return &Builder{catalog: catalog, snapshots: snapshots}
}

// BuildRequest carries the per-report arguments of Build.
type BuildRequest struct {
	ReportID  uuid.UUID
	SectionID string
	Source    DataSource
	Context   TemplateContext
	// Improvement is injected first when the section asks for it.
	Improvement any
}

// Build creates the input of one section. A missing required item is an
// error; a missing optional item is skipped, and switches the section to
// degraded mode when the item says so.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*Input, error) {
	cfg, ok := b.catalog.Section(req.SectionID)
	if !ok {
		return nil, ErrUnknownSection
	}

	in := &Input{SectionID: req.SectionID}
	if cfg.InjectImprovement && req.Improvement != nil {
		id, err := b.snapshots.Create(ctx, req.ReportID, DataTypeImprovement, req.Improvement)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSnapshotWrite, err)
		}
		details, err := toMap(req.Improvement)
		if err != nil {
			return nil, fmt.Errorf("encode improvement: %w", err)
		}
		in.Items = append(in.Items, Item{
			DataID:   id.String(),
			DataType: DataTypeImprovement,
			Name:     improvementName,
			Describe: improvementDescribe,
			Details:  details,
		})
	}

	for _, spec := range cfg.Inputs.Required {
		payload, ok := req.Source.Get(spec.DataType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, spec.DataType)
		}
		it, err := b.item(ctx, req, spec, payload)
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, it)
	}
	for _, spec := range cfg.Inputs.Optional {
		payload, ok := req.Source.Get(spec.DataType)
		if !ok {
			in.Degraded = in.Degraded || spec.Degrade
			continue
		}
		it, err := b.item(ctx, req, spec, payload)
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, it)
	}
	return in, nil
}

func (b *Builder) item(ctx context.Context, req BuildRequest, spec InputSpec, payload map[string]any) (Item, error) {
	id, err := b.snapshots.Create(ctx, req.ReportID, spec.DataType, payload)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrSnapshotWrite, err)
	}

	it := Item{
		DataID:   id.String(),
		DataType: spec.DataType,
		Name:     spec.Name,
		Describe: spec.Describe,
	}
	if it.Name == "" {
		it.Name = spec.DataType
	}
	if spec.SummaryTemplate != "" {
		values := req.Context.values()
		for k, v := range payload {
			values[k] = v
		}
		it.Summary = formatTemplate(spec.SummaryTemplate, values)
	}
	if len(spec.KeyParams) > 0 {
		it.KeyParams = make(map[string]any, len(spec.KeyParams))
		for _, k := range spec.KeyParams {
			if v, ok := payload[k]; ok {
				it.KeyParams[k] = v
			}
		}
	}
	it.Details = details(payload, spec.Details)
	return it, nil
}

// details keeps the listed fields of payload, or all of them when none are
// listed. Keys starting with "_" are internal and never shown.
func details(payload map[string]any, fields []string) map[string]any {
	out := make(map[string]any)
	if len(fields) == 0 {
		for k, v := range payload {
			if !strings.HasPrefix(k, "_") {
				out[k] = v
			}
		}
		return out
	}
	for _, k := range fields {
		if v, ok := payload[k]; ok && !strings.HasPrefix(k, "_") {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
