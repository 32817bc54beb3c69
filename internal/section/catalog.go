// Package section turns one configured report section into renderable
// blocks: it builds the data-grounded prompt, forces a single function call
// from the oracle, parses and validates the arguments, overwrites every
// number the backend can compute, and maps the result onto blocks.
package section

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const (
	TypeStatic  = "static"
	TypeDynamic = "dynamic"

	modelEnvPrefix = "HYROX_MODEL_"
)

// Definition is one entry of sections.yaml.
type Definition struct {
	SectionID   string `koanf:"section_id"`
	Title       string `koanf:"title"`
	Type        string `koanf:"type"`
	Order       int    `koanf:"order"`
	Enabled     bool   `koanf:"enabled"`
	Tag         string `koanf:"section_tag"`
	Subtitle    string `koanf:"subtitle"`
	Description string `koanf:"description"`
}

// ModelConfig selects the model and sampling of a section's oracle call.
type ModelConfig struct {
	ModelName      string  `koanf:"model_name"`
	MaxTokens      int     `koanf:"max_tokens"`
	Temperature    float64 `koanf:"temperature"`
	EnableThinking bool    `koanf:"enable_thinking"`
}

// BlockMapping names the block an argument renders as.
type BlockMapping struct {
	Type      string `koanf:"type"`
	Component string `koanf:"component"`
}

// InputSpec declares one data item a section's prompt is grounded on.
type InputSpec struct {
	DataType        string   `koanf:"data_type"`
	Name            string   `koanf:"name"`
	Describe        string   `koanf:"describe"`
	SummaryTemplate string   `koanf:"summary_template"`
	KeyParams       []string `koanf:"key_params"`
	Details         []string `koanf:"details"`
	// Degrade marks an optional item whose absence switches the section
	// to degraded mode.
	Degrade bool `koanf:"degrade"`
}

// Inputs splits a section's data items by whether the section can run
// without them.
type Inputs struct {
	Required []InputSpec `koanf:"required"`
	Optional []InputSpec `koanf:"optional"`
}

type toolConfig struct {
	Name        string         `koanf:"name"`
	Description string         `koanf:"description"`
	Parameters  map[string]any `koanf:"parameters"`
}

type sectionFile struct {
	Tool              toolConfig              `koanf:"tool"`
	BlocksMapping     map[string]BlockMapping `koanf:"blocks_mapping"`
	Inputs            Inputs                  `koanf:"inputs"`
	InjectImprovement bool                    `koanf:"inject_improvement"`
}

// Config is the full configuration of one dynamic section.
type Config struct {
	Definition
	Tool              models.Tool
	BlocksMapping     map[string]BlockMapping
	Inputs            Inputs
	InjectImprovement bool
	Prompt            string

	schema *jsonschema.Schema
}

// Validate checks parsed arguments against the tool's parameter schema.
func (c *Config) Validate(args map[string]any) error {
	if c == nil || c.schema == nil {
		return nil
	}
	return c.schema.Validate(args)
}

// Catalog is the loaded report configuration. It is immutable after
// LoadCatalog and safe for concurrent use.
type Catalog struct {
	titleTemplate string
	definitions   []Definition
	sections      map[string]*Config
	model         ModelConfig
	overrides     map[string]ModelConfig
}

type catalogFile struct {
	TitleTemplate string       `koanf:"report_title_template"`
	Sections      []Definition `koanf:"sections"`
}

type modelFile struct {
	Default   ModelConfig            `koanf:"default"`
	Overrides map[string]ModelConfig `koanf:"section_overrides"`
}

var errNoSections = errors.New("catalog declares no sections")

// LoadCatalog reads sections.yaml, model.yaml and sections/<id>/ under dir.
// Model defaults may be overridden by HYROX_MODEL_* environment variables.
func LoadCatalog(dir string) (*Catalog, error) {
	var cf catalogFile
	if err := loadYAML(filepath.Join(dir, "sections.yaml"), &cf); err != nil {
		return nil, err
	}
	if len(cf.Sections) == 0 {
		return nil, errNoSections
	}

	mf, err := loadModel(filepath.Join(dir, "model.yaml"))
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		titleTemplate: cf.TitleTemplate,
		definitions:   cf.Sections,
		sections:      make(map[string]*Config),
		model:         mf.Default,
		overrides:     mf.Overrides,
	}
	if c.titleTemplate == "" {
		c.titleTemplate = "{athlete_name} - HYROX {location} S{season} 专业分析报告"
	}
	sort.SliceStable(c.definitions, func(i, j int) bool { return c.definitions[i].Order < c.definitions[j].Order })

	for _, def := range c.definitions {
		if def.Type != TypeDynamic {
			continue
		}
		cfg, err := loadSection(filepath.Join(dir, "sections", def.SectionID), def)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", def.SectionID, err)
		}
		c.sections[def.SectionID] = cfg
	}
	return c, nil
}

func loadYAML(path string, out any) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	if err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadModel(path string) (modelFile, error) {
	k := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return modelFile{}, fmt.Errorf("load model.yaml: %w", err)
		}
	}

	// HYROX_MODEL_MAX_TOKENS -> default.max_tokens
	envProvider := env.Provider(modelEnvPrefix, ".", func(s string) string {
		return "default." + strings.ToLower(strings.TrimPrefix(s, modelEnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return modelFile{}, fmt.Errorf("load model env: %w", err)
	}

	mf := modelFile{Default: ModelConfig{ModelName: "qwen-plus", MaxTokens: 4096, Temperature: 0.3}}
	if err := k.UnmarshalWithConf("", &mf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return modelFile{}, fmt.Errorf("decode model config: %w", err)
	}
	return mf, nil
}

func loadSection(dir string, def Definition) (*Config, error) {
	var sf sectionFile
	if err := loadYAML(filepath.Join(dir, "section.yaml"), &sf); err != nil {
		return nil, err
	}
	if sf.Tool.Name == "" {
		return nil, errors.New("章节无 tool 定义")
	}
	prompt, err := os.ReadFile(filepath.Join(dir, "prompt.md"))
	if err != nil {
		return nil, fmt.Errorf("read prompt: %w", err)
	}

	params := sf.Tool.Parameters
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	schema, err := compileSchema(def.SectionID, params)
	if err != nil {
		return nil, err
	}

	return &Config{
		Definition: def,
		Tool: models.Tool{
			Type: "function",
			Function: models.FunctionSchema{
				Name:        sf.Tool.Name,
				Description: sf.Tool.Description,
				Parameters:  params,
			},
		},
		BlocksMapping:     sf.BlocksMapping,
		Inputs:            sf.Inputs,
		InjectImprovement: sf.InjectImprovement,
		Prompt:            strings.TrimSpace(string(prompt)),
		schema:            schema,
	}, nil
}

func compileSchema(sectionID string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode tool parameters: %w", err)
	}
	url := "mem://sections/" + sectionID + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile tool parameters: %w", err)
	}
	return schema, nil
}

// Definitions returns the enabled sections in order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.definitions))
	for _, d := range c.definitions {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// DynamicIDs returns the enabled sections the oracle generates, in order.
func (c *Catalog) DynamicIDs() []string {
	var out []string
	for _, d := range c.Definitions() {
		if d.Type == TypeDynamic {
			out = append(out, d.SectionID)
		}
	}
	return out
}

// Section returns the configuration of a dynamic section.
func (c *Catalog) Section(id string) (*Config, bool) {
	cfg, ok := c.sections[id]
	return cfg, ok
}

// Definition returns the catalog entry of id, enabled or not.
func (c *Catalog) Definition(id string) (Definition, bool) {
	for _, d := range c.definitions {
		if d.SectionID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Model returns the model settings of a section: the default with the
// section's override applied field by field.
func (c *Catalog) Model(sectionID string) ModelConfig {
	m := c.model
	o, ok := c.overrides[sectionID]
	if !ok {
		return m
	}
	if o.ModelName != "" {
		m.ModelName = o.ModelName
	}
	if o.MaxTokens > 0 {
		m.MaxTokens = o.MaxTokens
	}
	if o.Temperature > 0 {
		m.Temperature = o.Temperature
	}
	if o.EnableThinking {
		m.EnableThinking = true
	}
	return m
}

// Title renders the report title template.
func (c *Catalog) Title(athleteName, location string, season int) string {
	return formatTemplate(c.titleTemplate, map[string]any{
		"athlete_name": athleteName,
		"location":     location,
		"season":       season,
	})
}
