package orchestration

import "github.com/koscakluka/ema-live/core/live"

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Zephyr"

	DefaultSystemInstruction = "You are a live support agent for property claims inspectors. " +
		"You are an expert in building systems that use Retrieval-Augmented Generation (RAG) to reference technical documents. " +
		"Be prepared to explain the steps for implementing RAG, including document processing, vector embeddings, " +
		"and integrating with a large language model. Be concise, clear, and very responsive."
)

// DefaultLiveConfig is an audio-only session with both transcriptions
// enabled. Tool declarations are added from the registered tools at start.
func DefaultLiveConfig() live.Config {
	return live.Config{
		Model:               DefaultModel,
		Voice:               DefaultVoice,
		SystemInstruction:   DefaultSystemInstruction,
		Modalities:          []live.Modality{live.ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
	}
}
