package gemini

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/invopop/jsonschema"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/live"
)

func TestNewSetupMessagePrefixesModelAndCarriesVoice(t *testing.T) {
	msg := newSetupMessage(live.Config{
		Model:               "gemini-2.5-flash-native-audio-preview-09-2025",
		Voice:               "Zephyr",
		SystemInstruction:   "be concise",
		Modalities:          []live.Modality{live.ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
		Tools: []live.ToolDeclaration{{
			Name:        "lookupInspectionManual",
			Description: "search the manual",
			Parameters:  &jsonschema.Schema{Type: "object"},
		}},
	})

	if msg.Setup == nil {
		t.Fatalf("expected setup payload")
	}
	if msg.Setup.Model != "models/gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Fatalf("expected prefixed model, got %q", msg.Setup.Model)
	}
	if msg.Setup.GenerationConfig.SpeechConfig == nil ||
		msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
		t.Fatalf("expected Zephyr voice, got %+v", msg.Setup.GenerationConfig.SpeechConfig)
	}
	if got := msg.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Fatalf("expected AUDIO modality, got %v", got)
	}
	if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
		t.Fatalf("expected both transcriptions enabled")
	}
	if len(msg.Setup.Tools) != 1 || msg.Setup.Tools[0].FunctionDeclarations[0].Name != "lookupInspectionManual" {
		t.Fatalf("expected tool declaration, got %+v", msg.Setup.Tools)
	}

	payload, err := sonic.Marshal(msg)
	if err != nil {
		t.Fatalf("expected setup to marshal, got %v", err)
	}
	var decoded map[string]any
	if err := sonic.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("expected setup json to decode, got %v", err)
	}
	if _, ok := decoded["setup"]; !ok {
		t.Fatalf("expected top-level setup key, got %s", payload)
	}
	if _, ok := decoded["realtimeInput"]; ok {
		t.Fatalf("expected realtimeInput to be omitted, got %s", payload)
	}
}

func TestNewSetupMessageKeepsQualifiedModel(t *testing.T) {
	msg := newSetupMessage(live.Config{Model: "models/custom"})
	if msg.Setup.Model != "models/custom" {
		t.Fatalf("expected model unchanged, got %q", msg.Setup.Model)
	}
	if msg.Setup.GenerationConfig.SpeechConfig != nil {
		t.Fatalf("expected no speech config without a voice")
	}
}

func TestNewToolResponseMessageWrapsResult(t *testing.T) {
	msg := newToolResponseMessage([]live.ToolResponse{
		{ID: "call-1", Name: "lookupInspectionManual", Result: "From the manual"},
	})

	if msg.ToolResponse == nil || len(msg.ToolResponse.FunctionResponses) != 1 {
		t.Fatalf("expected one function response, got %+v", msg.ToolResponse)
	}
	response := msg.ToolResponse.FunctionResponses[0]
	if response.ID != "call-1" || response.Name != "lookupInspectionManual" {
		t.Fatalf("expected id and name echoed, got %+v", response)
	}
	if response.Response["result"] != "From the manual" {
		t.Fatalf("expected result field, got %+v", response.Response)
	}
}

func TestServerMessageToEventsOrder(t *testing.T) {
	raw := `{
		"toolCall": {"functionCalls": [{"id": "c1", "name": "lookupInspectionManual", "args": {"query": "mold"}}]},
		"serverContent": {
			"inputTranscription": {"text": "hello"},
			"outputTranscription": {"text": "hi there"},
			"modelTurn": {"parts": [
				{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AAA="}},
				{"text": "ignored"},
				{"inlineData": {"mimeType": "audio/pcm;rate=24000", "data": "AQE="}}
			]},
			"turnComplete": true,
			"interrupted": true
		}
	}`

	msg, err := decodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("expected message to decode, got %v", err)
	}

	got := msg.toEvents()
	expected := []events.Kind{
		events.KindToolCall,
		events.KindInputTranscription,
		events.KindOutputTranscription,
		events.KindInlineAudio,
		events.KindInlineAudio,
		events.KindTurnComplete,
		events.KindInterrupted,
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d events, got %d", len(expected), len(got))
	}
	for i, kind := range expected {
		if got[i].Kind() != kind {
			t.Fatalf("expected event %d to be %q, got %q", i, kind, got[i].Kind())
		}
	}

	call := got[0].(events.ToolCall)
	if call.Invocations[0].ID != "c1" || call.Invocations[0].Arguments["query"] != "mold" {
		t.Fatalf("expected invocation to carry id and args, got %+v", call.Invocations[0])
	}
	if audio := got[4].(events.InlineAudio); audio.Data != "AQE=" {
		t.Fatalf("expected second audio part, got %q", audio.Data)
	}
}

func TestDecodeServerMessageRejectsGarbage(t *testing.T) {
	if _, err := decodeServerMessage([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSetupCompleteProducesNoEvents(t *testing.T) {
	msg, err := decodeServerMessage([]byte(`{"setupComplete": {}}`))
	if err != nil {
		t.Fatalf("expected message to decode, got %v", err)
	}
	if msg.SetupComplete == nil {
		t.Fatalf("expected setupComplete to be detected")
	}
	if got := msg.toEvents(); len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}
