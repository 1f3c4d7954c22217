package pipeline

// Wire messages exchanged with streaming translation backends. One JSON
// codec covers the local backend's endpoints and the cloud gateway; the
// Type field discriminates.
type wireMessage struct {
	Type           string `json:"type"`
	Data           string `json:"data,omitempty"`
	Message        string `json:"message,omitempty"`
	SampleRate     int    `json:"sampleRate,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	Voice          string `json:"voice,omitempty"`
	ASRMode        string `json:"asrMode,omitempty"`
	IsFinal        bool   `json:"isFinal,omitempty"`
}

// Client-to-backend message types.
const (
	msgConfig = "config"
	msgAudio  = "audio"
	msgText   = "text"
	msgStop   = "stop"
)

// Backend-to-client message types.
const (
	msgStatus          = "status"
	msgError           = "error"
	msgSourceText      = "source_text"
	msgSourceInterim   = "source_text_interim"
	msgTranslated      = "translated_text"
	msgTranslatedDraft = "translated_text_draft"
	msgTranslatedFinal = "translated_text_final"
)

// Status payloads.
const (
	statusReady        = "ready"
	statusLoadingModel = "loading_model"
	statusProcessing   = "processing"
)
