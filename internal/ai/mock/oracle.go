package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/hyroxreport/internal/ai"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// MockOracle satisfies models.Oracle for testing and records every request.
type MockOracle struct {
	Name_    string
	ChatFunc func(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)

	mu       sync.Mutex
	requests []models.ChatRequest
}

func (m *MockOracle) Name() string { return m.Name_ }

func (m *MockOracle) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return models.ChatResponse{}, nil
}

// Requests returns a copy of the requests received so far.
func (m *MockOracle) Requests() []models.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatRequest(nil), m.requests...)
}

// Calls returns how many requests were received.
func (m *MockOracle) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// NewMockOracle returns a MockOracle that answers with fixed text content.
func NewMockOracle(content string) *MockOracle {
	return &MockOracle{
		Name_: "mock",
		ChatFunc: func(_ context.Context, _ models.ChatRequest) (models.ChatResponse, error) {
			return models.ChatResponse{Content: content, Model: "mock-v1"}, nil
		},
	}
}

// NewToolCallOracle returns a MockOracle that answers every request with a
// call to the forced function carrying the given arguments. args is looked
// up by function name; unknown functions receive "{}".
func NewToolCallOracle(args map[string]string) *MockOracle {
	return &MockOracle{
		Name_: "mock",
		ChatFunc: func(_ context.Context, req models.ChatRequest) (models.ChatResponse, error) {
			name := ""
			if req.ToolChoice != nil && req.ToolChoice.Function != nil {
				name = req.ToolChoice.Function.Name
			} else if len(req.Tools) > 0 {
				name = req.Tools[0].Function.Name
			}
			a, ok := args[name]
			if !ok {
				a = "{}"
			}
			return models.ChatResponse{
				Model: "mock-v1",
				ToolCalls: []models.ToolCall{
					{ID: "call_" + uuid.NewString()[:8], Name: name, Arguments: a},
				},
			}, nil
		},
	}
}

// NewFailingOracle returns a MockOracle that always returns the given error.
func NewFailingOracle(err error) *MockOracle {
	return &MockOracle{
		Name_: "mock-failing",
		ChatFunc: func(_ context.Context, _ models.ChatRequest) (models.ChatResponse, error) {
			return models.ChatResponse{}, err
		},
	}
}

// NewTimeoutOracle returns a MockOracle that blocks until context is cancelled.
func NewTimeoutOracle() *MockOracle {
	return &MockOracle{
		Name_: "mock-timeout",
		ChatFunc: func(ctx context.Context, _ models.ChatRequest) (models.ChatResponse, error) {
			<-ctx.Done()
			return models.ChatResponse{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockOracle implements Oracle.
var _ models.Oracle = (*MockOracle)(nil)
