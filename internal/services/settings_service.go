package services

import (
	"math"

	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
)

type Me struct {
	models.Participant
	Volume    float64 `json:"volume"`
	Capturing bool    `json:"capturing"`
	SessionID string  `json:"sessionId,omitempty"`
}

// SettingsService exposes the local identity and volume entry points.
type SettingsService interface {
	Me() Me
	Rename(name string) (Me, error)
	SetVolume(v float64) (Me, error)
}

type settingsService struct {
	ident *identity.Context
	cap   Capturer
	hub   *events.Hub
}

func NewSettingsService(ident *identity.Context, c Capturer, hub *events.Hub) SettingsService {
	return &settingsService{ident: ident, cap: c, hub: hub}
}

func (s *settingsService) Me() Me {
	me := Me{Participant: s.ident.Participant(), Volume: s.ident.Volume()}
	if s.cap != nil {
		me.Capturing = s.cap.Capturing()
		me.SessionID = s.cap.SessionID()
	}
	return me
}

func (s *settingsService) Rename(name string) (Me, error) {
	if err := s.ident.Rename(name); err != nil {
		return Me{}, err
	}
	me := s.Me()
	s.hub.Publish(events.TypeStatus, map[string]string{"state": "renamed", "name": me.Name})
	return me, nil
}

func (s *settingsService) SetVolume(v float64) (Me, error) {
	const op = "SettingsService.SetVolume"

	if math.IsNaN(v) || v < 0 || v > 1 {
		return Me{}, utils.E(utils.CodeInvalidArgument, op, "volume must be between 0 and 1", nil)
	}
	if err := s.ident.SetVolume(v); err != nil {
		return Me{}, err
	}
	return s.Me(), nil
}
