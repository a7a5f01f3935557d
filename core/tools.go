package orchestration

import (
	"context"
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	LookupInspectionManualTool = "lookupInspectionManual"

	toolFailureResult = "Sorry, I couldn't search the manual right now."
)

// Retriever answers a free-text query. It must always return a string,
// including a "not found" sentence for empty or unmatched queries.
type Retriever interface {
	Search(query string) string
}

// Tool is a function the remote agent may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	execute func(ctx context.Context, arguments map[string]any) (string, error)
}

// NewTool builds a tool whose parameter schema is reflected from P. Call
// arguments are decoded into P before fn runs.
func NewTool[P any](name, description string, fn func(ctx context.Context, params P) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var params P
	schema := reflector.ReflectFromType(reflect.TypeOf(params))
	schema.Version = ""

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		execute: func(ctx context.Context, arguments map[string]any) (string, error) {
			var params P
			if len(arguments) > 0 {
				raw, err := sonic.Marshal(arguments)
				if err != nil {
					return "", fmt.Errorf("failed to encode arguments: %w", err)
				}
				if err := sonic.Unmarshal(raw, &params); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}
			return fn(ctx, params)
		},
	}
}

func (t Tool) declaration() live.ToolDeclaration {
	return live.ToolDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

type lookupInspectionManualParams struct {
	Query string `json:"query" jsonschema:"description=Keywords or a question to search the property inspection manual for"`
}

func lookupInspectionManual(retriever Retriever) Tool {
	return NewTool(LookupInspectionManualTool,
		"Search the property inspection manual for procedures on water damage, mold and structural checks",
		func(_ context.Context, params lookupInspectionManualParams) (string, error) {
			return retriever.Search(params.Query), nil
		})
}

// toolDispatcher routes invocations to registered tools. Execution happens on
// helper goroutines; bookkeeping is owned by the control loop.
type toolDispatcher struct {
	tools map[string]Tool
	order []string

	// pending counts dispatched invocations whose response has not been
	// produced yet.
	pending int
	// deferred holds responses produced before the session handle resolved.
	deferred []live.ToolResponse
}

func newToolDispatcher() *toolDispatcher {
	return &toolDispatcher{tools: make(map[string]Tool)}
}

func (d *toolDispatcher) register(tools ...Tool) {
	for _, tool := range tools {
		if _, exists := d.tools[tool.Name]; !exists {
			d.order = append(d.order, tool.Name)
		}
		d.tools[tool.Name] = tool
	}
}

func (d *toolDispatcher) declarations() []live.ToolDeclaration {
	declarations := make([]live.ToolDeclaration, 0, len(d.order))
	for _, name := range d.order {
		declarations = append(declarations, d.tools[name].declaration())
	}
	return declarations
}

func (d *toolDispatcher) reset() {
	d.pending = 0
	d.deferred = nil
}

// dispatch starts every known invocation and returns how many were started.
// Unknown tools are logged and skipped. done is called exactly once per
// started invocation, from a helper goroutine.
func (d *toolDispatcher) dispatch(ctx context.Context, call events.ToolCall, done func(live.ToolResponse)) int {
	started := 0
	for _, invocation := range call.Invocations {
		tool, ok := d.tools[invocation.Name]
		if !ok {
			logger.Warn("ignoring call to unknown tool", "tool", invocation.Name, "id", invocation.ID)
			toolCalls.WithLabelValues(invocation.Name, toolOutcomeIgnored).Inc()
			continue
		}

		d.pending++
		started++
		go func() {
			done(live.ToolResponse{
				ID:     invocation.ID,
				Name:   invocation.Name,
				Result: executeTool(ctx, tool, invocation),
			})
		}()
	}
	return started
}

// executeTool never fails: errors and panics degrade to an apologetic result
// so the invocation id is always answered.
func executeTool(ctx context.Context, tool Tool, invocation events.ToolInvocation) (result string) {
	ctx, span := tracer.Start(ctx, "execute tool", trace.WithAttributes(
		attribute.String("tool.name", tool.Name),
		attribute.String("tool.call_id", invocation.ID),
	))
	defer span.End()

	run := panicSafeNamedWorker(tool.Name, func(ctx context.Context) error {
		var err error
		result, err = tool.execute(ctx, invocation.Arguments)
		return err
	})

	timer := prometheus.NewTimer(retrievalDuration)
	err := run(ctx)
	timer.ObserveDuration()

	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", tool.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("tool execution failed", "tool", tool.Name, "id", invocation.ID, "error", err)
		toolCalls.WithLabelValues(tool.Name, toolOutcomeFailed).Inc()
		return toolFailureResult
	}

	toolCalls.WithLabelValues(tool.Name, toolOutcomeAnswered).Inc()
	return result
}
