// Package elevenlabs provides an HTTP client for the ElevenLabs
// text-to-speech API.
package elevenlabs

// Defaults used when no option overrides them.
const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultVoiceID      = "pNInz6obpgDQGcFmaJgB"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_96"
)

// VoiceSettings tunes the generated voice. Zero values are omitted and the
// voice's stored settings apply.
type VoiceSettings struct {
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// speechRequest is the body of POST /v1/text-to-speech/{voice_id}.
type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// errorResponse is the JSON error body ElevenLabs returns on failure.
type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}
