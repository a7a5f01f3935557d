package gemini

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
)

// Client messages. Field names follow the BidiGenerateContent JSON mapping.

type clientMessage struct {
	Setup         *setup         `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setup struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	Tools                    []tool           `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name                 string             `json:"name"`
	Description          string             `json:"description,omitempty"`
	ParametersJSONSchema *jsonschema.Schema `json:"parametersJsonSchema,omitempty"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Server messages.

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	ToolCall      *toolCall      `json:"toolCall,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCall struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

func newSetupMessage(config live.Config) clientMessage {
	model := config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	s := &setup{Model: model}
	for _, modality := range config.Modalities {
		s.GenerationConfig.ResponseModalities = append(s.GenerationConfig.ResponseModalities, string(modality))
	}
	if config.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: config.Voice}},
		}
	}
	if config.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: config.SystemInstruction}}}
	}
	if len(config.Tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(config.Tools))
		for _, declaration := range config.Tools {
			declarations = append(declarations, functionDeclaration{
				Name:                 declaration.Name,
				Description:          declaration.Description,
				ParametersJSONSchema: declaration.Parameters,
			})
		}
		s.Tools = []tool{{FunctionDeclarations: declarations}}
	}
	if config.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if config.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}

	return clientMessage{Setup: s}
}

func newAudioMessage(frame live.AudioFrame) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{
		Audio: &blob{MIMEType: frame.MIMEType, Data: frame.Data},
	}}
}

func newToolResponseMessage(responses []live.ToolResponse) clientMessage {
	functionResponses := make([]functionResponse, 0, len(responses))
	for _, response := range responses {
		functionResponses = append(functionResponses, functionResponse{
			ID:       response.ID,
			Name:     response.Name,
			Response: map[string]any{"result": response.Result},
		})
	}
	return clientMessage{ToolResponse: &toolResponse{FunctionResponses: functionResponses}}
}

func decodeServerMessage(data []byte) (serverMessage, error) {
	var msg serverMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return serverMessage{}, fmt.Errorf("failed to unmarshal server message: %w", err)
	}
	return msg, nil
}

// toEvents splits a server message into events in handling order: tool
// calls, user transcript, agent transcript, audio, turn complete,
// interruption.
func (msg serverMessage) toEvents() []events.Event {
	var out []events.Event

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		invocations := make([]events.ToolInvocation, 0, len(msg.ToolCall.FunctionCalls))
		for _, call := range msg.ToolCall.FunctionCalls {
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
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				out = append(out, events.NewInlineAudio(p.InlineData.Data, p.InlineData.MIMEType))
			}
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
