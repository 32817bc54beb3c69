package section

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// State is the progress of one section through the pipeline.
type State string

const (
	StateNotStarted State = "not_started"
	StateInputBuilt State = "input_built"
	StateLLMCalled  State = "llm_called"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Output is the result of one section. A failed section carries no blocks.
type Output struct {
	SectionID    string
	Title        string
	State        State
	FunctionName string
	Args         Args
	Blocks       []models.Block
	DataIDs      map[string]string
	ErrorMessage string
}

// Success reports whether the section produced content.
func (o *Output) Success() bool {
	return o != nil && o.State == StateSuccess
}

// Fields returns the patched arguments, or nil when there are none.
func (o *Output) Fields() map[string]any {
	if !o.Success() || o.Args == nil {
		return nil
	}
	return o.Args.Fields()
}

func (o *Output) fail(err error) *Output {
	o.State = StateFailed
	o.ErrorMessage = err.Error()
	o.Blocks = nil
	return o
}

// Recorder observes section outcomes. metrics.Metrics implements it.
type Recorder interface {
	SectionOutcome(sectionID, result string, d time.Duration)
}

// Pipeline runs sections: input, oracle call, patch, blocks.
type Pipeline struct {
	catalog   *Catalog
	builder   *Builder
	generator *Generator
	recorder  Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports every section outcome to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func NewPipeline(catalog *Catalog, oracle models.Oracle, snapshots Snapshotter, opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog:   catalog,
		builder:   NewBuilder(catalog, snapshots),
		generator: NewGenerator(catalog, oracle),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Catalog returns the catalog the pipeline was built with.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Request is the per-report input of Run.
type Request struct {
	ReportID uuid.UUID
	Source   DataSource
	Context  TemplateContext
	Facts    Facts
}

// Run takes one section from NotStarted to Success or Failed. Oracle and
// parse failures are recorded on the output so one section cannot fail
// another; only a snapshot write failure is returned, since the report can
// no longer be traced.
func (p *Pipeline) Run(ctx context.Context, sectionID string, req Request) (out *Output, err error) {
	start := time.Now()
	out = &Output{SectionID: sectionID, Title: sectionID, State: StateNotStarted}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in section pipeline", "section_id", sectionID, "report_id", req.ReportID, "error", r)
			out.fail(fmt.Errorf("panic: %v", r))
		}
		if out.State == StateFailed {
			slog.Warn("section failed", "section_id", sectionID, "report_id", req.ReportID, "error", out.ErrorMessage)
		}
		if p.recorder != nil {
			p.recorder.SectionOutcome(sectionID, string(out.State), time.Since(start))
		}
	}()

	def, ok := p.catalog.Definition(sectionID)
	if !ok {
		return out.fail(ErrUnknownSection), nil
	}
	out.Title = def.Title
	if def.Type == TypeStatic {
		out.State = StateSuccess
		return out, nil
	}

	br := BuildRequest{
		ReportID:  req.ReportID,
		SectionID: sectionID,
		Source:    req.Source,
		Context:   req.Context,
	}
	if req.Facts.Improvement != nil {
		br.Improvement = req.Facts.Improvement
	}
	in, err := p.builder.Build(ctx, br)
	if errors.Is(err, ErrSnapshotWrite) {
		return out.fail(err), err
	}
	if err != nil {
		return out.fail(err), nil
	}
	out.State = StateInputBuilt
	out.DataIDs = in.DataIDs()

	call, err := p.generator.Generate(ctx, in)
	out.State = StateLLMCalled
	if err != nil {
		return out.fail(err), nil
	}

	cfg, _ := p.catalog.Section(sectionID)
	out.FunctionName = call.FunctionName
	out.Args = Patch(call.Args, req.Facts)
	out.Blocks = Blocks(out.Args.Fields(), cfg.BlocksMapping, out.DataIDs)
	out.State = StateSuccess
	return out, nil
}
