package models

import "bytes"

// Recording is the complete capture of one session, emitted once on stop.
type Recording struct {
	SessionID string
	MimeType  string
	Pieces    [][]byte
}

// Bytes returns the ordered concatenation of all pieces.
func (r Recording) Bytes() []byte {
	return bytes.Join(r.Pieces, nil)
}

func (r Recording) Empty() bool {
	for _, p := range r.Pieces {
		if len(p) > 0 {
			return false
		}
	}
	return true
}
