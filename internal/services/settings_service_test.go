package services

import (
	"math"
	"testing"
	"time"

	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/utils"
)

func TestSettingsVolume(t *testing.T) {
	ident := identity.New("u1", "Ana")
	var observed float64
	ident.OnVolumeChange(func(v float64) { observed = v })
	s := NewSettingsService(ident, &fakeCapturer{}, nil)

	me, err := s.SetVolume(0.3)
	if err != nil {
		t.Fatal(err)
	}
	if me.Volume != 0.3 || observed != 0.3 {
		t.Errorf("volume = %v, observed = %v", me.Volume, observed)
	}

	for _, v := range []float64{-0.1, 1.01, math.NaN()} {
		if _, err := s.SetVolume(v); !utils.IsCode(err, utils.CodeInvalidArgument) {
			t.Errorf("SetVolume(%v) = %v", v, err)
		}
	}
	if ident.Volume() != 0.3 {
		t.Errorf("rejected volume changed state: %v", ident.Volume())
	}
}

func TestSettingsRenameKeepsID(t *testing.T) {
	hub := events.NewHub(4)
	feed, unsub := hub.Subscribe()
	defer unsub()

	s := NewSettingsService(identity.New("u1", "Ana"), nil, hub)
	me, err := s.Rename("Bea")
	if err != nil {
		t.Fatal(err)
	}
	if me.ID != "u1" || me.Name != "Bea" {
		t.Errorf("me = %+v", me)
	}
	if got := collect(feed, events.TypeStatus, 20*time.Millisecond); len(got) != 1 {
		t.Errorf("status events = %d", len(got))
	}
}

func TestSettingsMeReportsCapture(t *testing.T) {
	c := &fakeCapturer{}
	s := NewSettingsService(identity.New("u1", "Ana"), c, nil)
	if s.Me().Capturing {
		t.Fatal("idle capturer reported capturing")
	}
	c.capturing, c.sessionID = true, "stream_1_u1"
	if me := s.Me(); !me.Capturing || me.SessionID != "stream_1_u1" {
		t.Errorf("me = %+v", me)
	}
}
