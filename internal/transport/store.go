// Package transport maps audio fragments, session metadata and chat messages
// onto a generic keyed, ordered, append-only store with child-added
// notifications, plus a blob store for recordings and images.
package transport

import (
	"context"
	"encoding/json"
	"path"
	"strings"
)

const (
	MessagesPath = "messages"
	StreamPath   = "stream"
	ChunksName   = "chunks"

	DefaultMessageTail = 50
	DefaultChunkTail   = 3
)

// Child is one entry reported by SubscribeChildAdded. Value is the JSON
// leaf value, or an object of the child's scalar fields when it is a node.
type Child struct {
	Key   string
	Value json.RawMessage
}

// Store is the pub/sub backend. Every write returns its own error; callers
// decide whether to discard it.
type Store interface {
	// AppendChild stores value under a generated, chronologically ordered key.
	AppendChild(ctx context.Context, p string, value any) (string, error)
	Write(ctx context.Context, p string, value any) error
	// Update writes several fields of p in one operation.
	Update(ctx context.Context, p string, fields map[string]any) error
	DeleteSubtree(ctx context.Context, p string) error
	// SubscribeChildAdded replays the last limitToLast children of p (all
	// when <= 0) and then reports new ones until ctx ends.
	SubscribeChildAdded(ctx context.Context, p string, limitToLast int) (<-chan Child, error)
	Close() error
}

func SessionPath(sessionID string) string { return path.Join(StreamPath, sessionID) }

func ChunksPath(sessionID string) string { return path.Join(StreamPath, sessionID, ChunksName) }

// CleanPath normalizes p to slash-separated segments without leading or trailing slashes.
func CleanPath(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

// SplitPath returns the parent and last segment of p.
func SplitPath(p string) (parent, name string) {
	p = CleanPath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}
