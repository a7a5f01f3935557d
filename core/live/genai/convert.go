package genai

import (
	"encoding/base64"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
	"google.golang.org/genai"
)

func newConnectConfig(config live.Config) (*genai.LiveConnectConfig, error) {
	connectConfig := &genai.LiveConnectConfig{}

	for _, modality := range config.Modalities {
		connectConfig.ResponseModalities = append(connectConfig.ResponseModalities, genai.Modality(modality))
	}
	if config.Voice != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}
	if config.SystemInstruction != "" {
		connectConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: config.SystemInstruction}}}
	}
	if config.InputTranscription {
		connectConfig.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if config.OutputTranscription {
		connectConfig.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}

	if len(config.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(config.Tools))
		for _, declaration := range config.Tools {
			parameters, err := convertSchema(declaration.Parameters)
			if err != nil {
				return nil, fmt.Errorf("invalid parameters for tool %q: %w", declaration.Name, err)
			}
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        declaration.Name,
				Description: declaration.Description,
				Parameters:  parameters,
			})
		}
		connectConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return connectConfig, nil
}

func convertSchema(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Description: schema.Description,
		Required:    schema.Required,
	}

	switch schema.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	case "":
	default:
		return nil, fmt.Errorf("unsupported schema type %q", schema.Type)
	}

	for _, value := range schema.Enum {
		if s, ok := value.(string); ok {
			out.Enum = append(out.Enum, s)
		}
	}

	if schema.Items != nil {
		items, err := convertSchema(schema.Items)
		if err != nil {
			return nil, err
		}
		out.Items = items
	}

	if schema.Properties != nil && schema.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, schema.Properties.Len())
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			property, err := convertSchema(pair.Value)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", pair.Key, err)
			}
			out.Properties[pair.Key] = property
			out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
		}
	}

	return out, nil
}

func newRealtimeInput(frame live.AudioFrame) (genai.LiveRealtimeInput, error) {
	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return genai.LiveRealtimeInput{}, fmt.Errorf("invalid audio frame payload: %w", err)
	}
	return genai.LiveRealtimeInput{Audio: &genai.Blob{Data: data, MIMEType: frame.MIMEType}}, nil
}

func newToolResponseInput(responses []live.ToolResponse) genai.LiveToolResponseInput {
	functionResponses := make([]*genai.FunctionResponse, 0, len(responses))
	for _, response := range responses {
		functionResponses = append(functionResponses, &genai.FunctionResponse{
			ID:       response.ID,
			Name:     response.Name,
			Response: map[string]any{"result": response.Result},
		})
	}
	return genai.LiveToolResponseInput{FunctionResponses: functionResponses}
}

// toEvents mirrors the websocket transport's ordering so the session manager
// cannot tell the two apart.
func toEvents(msg *genai.LiveServerMessage) []events.Event {
	if msg == nil {
		return nil
	}

	var out []events.Event
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		invocations := make([]events.ToolInvocation, 0, len(msg.ToolCall.FunctionCalls))
		for _, call := range msg.ToolCall.FunctionCalls {
			if call == nil {
				continue
			}
			invocations = append(invocations, events.ToolInvocation{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Args,
			})
		}
		out = append(out, events.NewToolCall(invocations...))
	}

	sc := msg.ServerContent
	if sc == nil {
		return out
	}
	if sc.InputTranscription != nil {
		out = append(out, events.NewInputTranscription(sc.InputTranscription.Text))
	}
	if sc.OutputTranscription != nil {
		out = append(out, events.NewOutputTranscription(sc.OutputTranscription.Text))
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out = append(out, events.NewInlineAudio(
				base64.StdEncoding.EncodeToString(part.InlineData.Data),
				part.InlineData.MIMEType,
			))
		}
	}
	if sc.TurnComplete {
		out = append(out, events.NewTurnComplete())
	}
	if sc.Interrupted {
		out = append(out, events.NewInterrupted())
	}
	return out
}
