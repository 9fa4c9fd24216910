package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/logger"
	"github.com/yoockh/livevoice/internal/playback"
	"github.com/yoockh/livevoice/internal/utils"
)

func newTestVoice(cfg VoiceConfig, speech *fakeSTT) (VoiceService, *fakeCapturer, *fakePublisher, *events.Hub) {
	c, pub, hub := &fakeCapturer{}, &fakePublisher{}, events.NewHub(64)
	var v VoiceService
	if speech != nil {
		v = NewVoiceService(cfg, c, pub, speech, playback.WAVDecoder{}, hub, logger.Discard(), nil)
	} else {
		v = NewVoiceService(cfg, c, pub, nil, nil, hub, logger.Discard(), nil)
	}
	return v, c, pub, hub
}

func TestVoicePublishesInOrderThenRetiresAndFinalizes(t *testing.T) {
	v, c, pub, _ := newTestVoice(VoiceConfig{RetireDelay: 5 * time.Second}, nil)
	ctx := context.Background()

	if err := v.StartCapture(ctx); err != nil {
		t.Fatal(err)
	}
	if err := v.StartCapture(ctx); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	for _, p := range []string{"F0", "F1", "F2", "F3", "F4"} {
		c.Emit([]byte(p))
	}
	if err := v.StopCapture(ctx); err != nil {
		t.Fatal(err)
	}
	v.Wait()

	log, frags, recs := pub.snapshot()
	if len(frags) != 5 {
		t.Fatalf("published %d fragments, want 5", len(frags))
	}
	for i, f := range frags {
		if f.Seq != int64(i) {
			t.Fatalf("fragment %d has seq %d", i, f.Seq)
		}
	}
	if len(log) != 7 || log[5] != "retire:stream_1_me" || log[6] != "final" {
		t.Errorf("call order = %v", log)
	}
	if len(recs) != 1 || string(recs[0].Bytes()) != "F0F1F2F3F4" {
		t.Errorf("recordings = %+v", recs)
	}
	if v.Capturing() {
		t.Error("capture flag should be false after stop")
	}
}

func TestVoiceDiscardsFragmentErrors(t *testing.T) {
	v, c, pub, _ := newTestVoice(VoiceConfig{}, nil)
	pub.fragErr = errors.New("store down")

	if err := v.StartCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Emit([]byte("F0"))
	c.Emit([]byte("F1"))
	if err := v.StopCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	v.Wait()

	_, frags, recs := pub.snapshot()
	if len(frags) != 2 || len(recs) != 1 {
		t.Errorf("fragments=%d recordings=%d", len(frags), len(recs))
	}
}

func TestVoiceFinalFailureSetsStatus(t *testing.T) {
	v, c, pub, hub := newTestVoice(VoiceConfig{}, nil)
	pub.finalErr = utils.E(utils.CodeTransport, "Adapter.PublishFinalRecording", "upload failed", nil)
	feed, unsub := hub.Subscribe()
	defer unsub()

	_ = v.StartCapture(context.Background())
	c.Emit([]byte("F0"))
	_ = v.StopCapture(context.Background())
	v.Wait()

	statuses := collect(feed, events.TypeStatus, 50*time.Millisecond)
	if len(statuses) != 1 || statuses[0].Data.(map[string]string)["state"] != "recording_failed" {
		t.Errorf("status events = %+v", statuses)
	}
}

func TestVoiceEmptyRecordingIsNotPublished(t *testing.T) {
	v, _, pub, _ := newTestVoice(VoiceConfig{}, nil)
	_ = v.StartCapture(context.Background())
	_ = v.StopCapture(context.Background())
	v.Wait()

	log, _, _ := pub.snapshot()
	if len(log) != 1 || log[0] != "retire:stream_1_me" {
		t.Errorf("calls = %v", log)
	}
}

func TestVoiceStartDenied(t *testing.T) {
	v, c, _, hub := newTestVoice(VoiceConfig{}, nil)
	c.err = utils.E(utils.CodePermissionDenied, "Pipeline.Start", "microphone access denied", nil)
	feed, unsub := hub.Subscribe()
	defer unsub()

	err := v.StartCapture(context.Background())
	if !utils.IsCode(err, utils.CodePermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if v.Capturing() {
		t.Error("capture flag must stay false")
	}
	evs := collect(feed, events.TypeCapture, 50*time.Millisecond)
	if len(evs) != 1 || evs[0].Data.(map[string]any)["capturing"] != false {
		t.Errorf("capture events = %+v", evs)
	}
}

func TestVoiceStopWhenIdle(t *testing.T) {
	v, _, pub, _ := newTestVoice(VoiceConfig{}, nil)
	if err := v.StopCapture(context.Background()); err != nil {
		t.Fatal(err)
	}
	v.Wait()
	if log, _, _ := pub.snapshot(); len(log) != 0 {
		t.Errorf("idle stop touched the transport: %v", log)
	}
}

func TestVoiceTranscribesEachPiece(t *testing.T) {
	speech := &fakeSTT{}
	v, c, pub, _ := newTestVoice(VoiceConfig{Transcribe: true, Language: "en-US"}, speech)

	piece, err := audio.EncodeWAV(audio.Tone(440, 100*time.Millisecond, 48000, 0.3, 0.3).Samples, 48000)
	if err != nil {
		t.Fatal(err)
	}

	_ = v.StartCapture(context.Background())
	c.Emit(piece)
	c.Emit([]byte("not audio"))
	c.Emit(piece)
	_ = v.StopCapture(context.Background())
	v.Wait()

	if speech.gotRate != 16000 || speech.gotLang != "en-US" {
		t.Errorf("stt called with rate=%d lang=%s", speech.gotRate, speech.gotLang)
	}
	// two decodable pieces of 100 ms at 16 kHz, 2 bytes per sample
	if speech.gotLen != 2*1600*2 {
		t.Errorf("pcm bytes = %d", speech.gotLen)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.transcript != "hello there" {
		t.Errorf("transcript = %q", pub.transcript)
	}
}
