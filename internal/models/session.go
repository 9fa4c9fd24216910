package models

import "time"

// StreamSession is the metadata record of one continuous act of live speech,
// stored at stream/{SessionID}.
type StreamSession struct {
	SessionID    string `json:"-"`
	OwnerID      string `json:"ownerId"`
	OwnerName    string `json:"ownerName"`
	LastActivity int64  `json:"timestamp"` // unix ms, rewritten on every fragment
}

// IsRecent reports whether the session saw activity within window before now.
// A zero LastActivity is never recent.
func (s StreamSession) IsRecent(now time.Time, window time.Duration) bool {
	if s.LastActivity <= 0 {
		return false
	}
	return now.Sub(time.UnixMilli(s.LastActivity)) < window
}

// IsOwnedBy reports whether participantID started the session.
func (s StreamSession) IsOwnedBy(participantID string) bool {
	return participantID != "" && s.OwnerID == participantID
}
