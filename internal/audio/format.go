package audio

import "strings"

const (
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeWebM     = "audio/webm"
	MimeWAV      = "audio/wav"
)

// PreferredMimeTypes is the capture codec preference, most compact first.
var PreferredMimeTypes = []string{MimeWebMOpus, MimeWebM, MimeWAV}

// Negotiate returns the first preferred mime type the environment supports,
// falling back to WAV which is always encodable in-process.
func Negotiate(preferred []string, supported func(mime string) bool) string {
	for _, m := range preferred {
		if m == MimeWAV || (supported != nil && supported(m)) {
			return m
		}
	}
	return MimeWAV
}

// BaseMime strips codec parameters: "audio/webm;codecs=opus" -> "audio/webm".
func BaseMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(strings.ToLower(mime))
}

// Extension returns the file extension used for blob names.
func Extension(mime string) string {
	switch BaseMime(mime) {
	case "audio/webm":
		return "webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	default:
		return "bin"
	}
}

// Sniff guesses the container of an encoded fragment from its magic bytes.
func Sniff(data []byte) string {
	switch {
	case IsWAV(data):
		return MimeWAV
	case len(data) >= 4 && data[0] == 0x1A && data[1] == 0x45 && data[2] == 0xDF && data[3] == 0xA3:
		return MimeWebM
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "audio/ogg"
	default:
		return ""
	}
}
