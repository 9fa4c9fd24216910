package stt

import (
	"context"
	"strings"
)

// Provider transcribes 16-bit mono LINEAR16 PCM.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (text string, confidence float64, err error)
	Close() error
}

// NormalizeLanguage maps short codes to BCP-47 tags the recognizer accepts.
func NormalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "id", "id-ID":
		return "id-ID"
	case "en", "en-US":
		return "en-US"
	default:
		if v == "" {
			return "en-US"
		}
		return v
	}
}
