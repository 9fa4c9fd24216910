package models

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestStreamSessionIsRecent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := StreamSession{OwnerID: "u1", LastActivity: t0.UnixMilli()}

	tests := []struct {
		name   string
		now    time.Time
		window time.Duration
		want   bool
	}{
		{"just written", t0, 60 * time.Second, true},
		{"inside window", t0.Add(59 * time.Second), 60 * time.Second, true},
		{"exactly at window", t0.Add(60 * time.Second), 60 * time.Second, false},
		{"61s later", t0.Add(61 * time.Second), 60 * time.Second, false},
		{"30s window", t0.Add(31 * time.Second), 30 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsRecent(tt.now, tt.window); got != tt.want {
				t.Errorf("IsRecent = %v, want %v", got, tt.want)
			}
		})
	}

	if (StreamSession{}).IsRecent(t0, time.Hour) {
		t.Error("session without timestamp must be stale")
	}
}

func TestStreamSessionIsOwnedBy(t *testing.T) {
	s := StreamSession{OwnerID: "me", OwnerName: "someone else"}
	if !s.IsOwnedBy("me") {
		t.Error("expected owner match")
	}
	if s.IsOwnedBy("other") || s.IsOwnedBy("") {
		t.Error("unexpected owner match")
	}
}

func TestAudioFragmentWireFormat(t *testing.T) {
	f := AudioFragment{Seq: 3, MimeType: "audio/wav", Data: []byte{1, 2, 3}}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"seq":3,"mime":"audio/wav","data":"AQID"}` {
		t.Errorf("wire = %s", b)
	}
	if f.Base64() != "AQID" {
		t.Errorf("Base64 = %s", f.Base64())
	}
}

func TestDecodeBase64Payload(t *testing.T) {
	for _, in := range []string{"AQID", "data:audio/webm;base64,AQID", "  AQID\n"} {
		got, err := DecodeBase64Payload(in)
		if err != nil {
			t.Fatalf("DecodeBase64Payload(%q): %v", in, err)
		}
		if !bytes.Equal(got, []byte{1, 2, 3}) {
			t.Errorf("DecodeBase64Payload(%q) = %v", in, got)
		}
	}
	for _, in := range []string{"", "data:nocomma", "!!notbase64"} {
		if _, err := DecodeBase64Payload(in); err == nil {
			t.Errorf("DecodeBase64Payload(%q) expected error", in)
		}
	}
}

func TestRecordingBytes(t *testing.T) {
	r := Recording{Pieces: [][]byte{[]byte("F0"), []byte("F1"), []byte("F2")}}
	if got := string(r.Bytes()); got != "F0F1F2" {
		t.Errorf("Bytes = %q", got)
	}
	if r.Empty() {
		t.Error("recording with pieces is not empty")
	}
	if !(Recording{Pieces: [][]byte{{}}}).Empty() {
		t.Error("recording with only empty pieces is empty")
	}
}

func TestChatMessageValid(t *testing.T) {
	ok := ChatMessage{Type: MessageText, AuthorID: "u", Content: "hi"}
	if !ok.Valid() {
		t.Error("expected valid")
	}
	bad := ok
	bad.Type = "video"
	if bad.Valid() {
		t.Error("unknown type must be invalid")
	}
}
