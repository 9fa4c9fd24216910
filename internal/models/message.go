package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
)

// ChatMessage is one append-only entry of messages/*.
type ChatMessage struct {
	Key        string      `bson:"key" json:"key,omitempty"`
	Type       MessageType `bson:"type" json:"type"`
	AuthorID   string      `bson:"author_id" json:"authorId"`
	AuthorName string      `bson:"author_name" json:"authorName"`
	Content    string      `bson:"content" json:"content"` // text, or a blob URL for image/audio
	Transcript string      `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Timestamp  int64       `bson:"timestamp" json:"timestamp"` // unix ms

	ArchivedAt time.Time `bson:"archived_at,omitempty" json:"-"`
	ExpiresAt  time.Time `bson:"expires_at,omitempty" json:"-"` // for TTL index
}

func (m ChatMessage) Valid() bool {
	switch m.Type {
	case MessageText, MessageImage, MessageAudio:
	default:
		return false
	}
	return m.AuthorID != "" && m.Content != ""
}
