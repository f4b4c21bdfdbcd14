package podcast

import "github.com/nupi-ai/plugin-tts-podcast/internal/script"

// VoiceAssignment maps speaker roles to synthesis voice identifiers.
type VoiceAssignment struct {
	Host  string
	Guest string
}

// For returns the voice for speaker. Speakers other than Guest use the Host
// voice.
func (v VoiceAssignment) For(speaker script.Speaker) string {
	if speaker == script.Guest {
		return v.Guest
	}
	return v.Host
}
