package audio

import "testing"

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		want      string
	}{
		{"opus available", map[string]bool{MimeWebMOpus: true, MimeWebM: true}, MimeWebMOpus},
		{"generic webm only", map[string]bool{MimeWebM: true}, MimeWebM},
		{"nothing", map[string]bool{}, MimeWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(PreferredMimeTypes, func(m string) bool { return tt.supported[m] })
			if got != tt.want {
				t.Errorf("Negotiate = %q, want %q", got, tt.want)
			}
		})
	}
	if got := Negotiate(PreferredMimeTypes, nil); got != MimeWAV {
		t.Errorf("nil probe = %q", got)
	}
}

func TestExtensionAndBaseMime(t *testing.T) {
	if BaseMime("Audio/WebM; codecs=opus") != "audio/webm" {
		t.Errorf("BaseMime = %q", BaseMime("Audio/WebM; codecs=opus"))
	}
	for mime, ext := range map[string]string{
		MimeWebMOpus: "webm",
		MimeWebM:     "webm",
		MimeWAV:      "wav",
		"audio/ogg":  "ogg",
		"video/mp4":  "bin",
	} {
		if got := Extension(mime); got != ext {
			t.Errorf("Extension(%q) = %q, want %q", mime, got, ext)
		}
	}
}

func TestSniff(t *testing.T) {
	wav, _ := EncodeWAV([]int16{1, 2}, 8000)
	if Sniff(wav) != MimeWAV {
		t.Error("wav not sniffed")
	}
	if Sniff([]byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}) != MimeWebM {
		t.Error("webm not sniffed")
	}
	if Sniff([]byte("OggS....")) != "audio/ogg" {
		t.Error("ogg not sniffed")
	}
	if Sniff([]byte{0, 1}) != "" {
		t.Error("unknown data should sniff empty")
	}
}
