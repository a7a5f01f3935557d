package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
)

func TestNewToolReflectsParameterSchema(t *testing.T) {
	tool := lookupInspectionManual(retrieverFunc(func(string) string { return "" }))

	if tool.Parameters == nil || tool.Parameters.Type != "object" {
		t.Fatalf("expected object schema, got %+v", tool.Parameters)
	}
	query, ok := tool.Parameters.Properties.Get("query")
	if !ok {
		t.Fatalf("expected query property")
	}
	if query.Type != "string" || query.Description == "" {
		t.Fatalf("expected described string property, got %+v", query)
	}
	if tool.Parameters.Version != "" {
		t.Fatalf("expected schema version to be stripped, got %q", tool.Parameters.Version)
	}
}

func TestNewToolDecodesArguments(t *testing.T) {
	type params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}

	var received params
	tool := NewTool("search", "", func(_ context.Context, p params) (string, error) {
		received = p
		return "ok", nil
	})

	result, err := tool.execute(context.Background(), map[string]any{"query": "mold", "limit": 2})
	if err != nil || result != "ok" {
		t.Fatalf("expected ok result, got %q, %v", result, err)
	}
	if received.Query != "mold" || received.Limit != 2 {
		t.Fatalf("expected decoded arguments, got %+v", received)
	}
}

func TestExecuteToolDegradesFailures(t *testing.T) {
	testCases := []struct {
		name string
		fn   func(context.Context, lookupInspectionManualParams) (string, error)
	}{
		{
			name: "error",
			fn: func(context.Context, lookupInspectionManualParams) (string, error) {
				return "", errors.New("index unavailable")
			},
		},
		{
			name: "panic",
			fn: func(context.Context, lookupInspectionManualParams) (string, error) {
				panic("nil index")
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			tool := NewTool(LookupInspectionManualTool, "", testCase.fn)
			result := executeTool(context.Background(), tool, events.ToolInvocation{ID: "x", Name: tool.Name})
			if result != toolFailureResult {
				t.Fatalf("expected %q, got %q", toolFailureResult, result)
			}
		})
	}
}

func TestDispatchSkipsUnknownTools(t *testing.T) {
	dispatcher := newToolDispatcher()
	dispatcher.register(lookupInspectionManual(retrieverFunc(func(query string) string { return query })))

	responses := make(chan live.ToolResponse, 2)
	started := dispatcher.dispatch(context.Background(), events.NewToolCall(
		events.ToolInvocation{ID: "1", Name: "unknown"},
		events.ToolInvocation{ID: "2", Name: LookupInspectionManualTool, Arguments: map[string]any{"query": "roof"}},
	), func(response live.ToolResponse) { responses <- response })

	if started != 1 || dispatcher.pending != 1 {
		t.Fatalf("expected one started invocation, got started=%d pending=%d", started, dispatcher.pending)
	}
	response := <-responses
	if response.ID != "2" || response.Result != "roof" {
		t.Fatalf("expected response for id 2, got %+v", response)
	}
}

func TestRegisterReplacesToolWithSameName(t *testing.T) {
	dispatcher := newToolDispatcher()
	dispatcher.register(
		NewTool("a", "first", func(context.Context, struct{}) (string, error) { return "", nil }),
		NewTool("b", "", func(context.Context, struct{}) (string, error) { return "", nil }),
		NewTool("a", "second", func(context.Context, struct{}) (string, error) { return "", nil }),
	)

	declarations := dispatcher.declarations()
	if len(declarations) != 2 || declarations[0].Name != "a" || declarations[1].Name != "b" {
		t.Fatalf("expected declarations in registration order, got %+v", declarations)
	}
	if declarations[0].Description != "second" {
		t.Fatalf("expected replacement tool, got %q", declarations[0].Description)
	}
}
