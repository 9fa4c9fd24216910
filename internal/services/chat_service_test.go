package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/logger"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/utils"
)

type fakeChannel struct {
	msgs  chan models.ChatMessage
	texts []string
}

func (c *fakeChannel) PublishText(_ context.Context, text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeChannel) PublishImage(context.Context, string, string, io.Reader) error { return nil }

func (c *fakeChannel) SubscribeMessages(context.Context) (<-chan models.ChatMessage, error) {
	return c.msgs, nil
}

type fakeArchiver struct {
	got  []models.ChatMessage
	full bool
}

func (a *fakeArchiver) Enqueue(m models.ChatMessage) bool {
	if a.full {
		return false
	}
	a.got = append(a.got, m)
	return true
}

type fakeMessages struct {
	limit int64
}

func (r *fakeMessages) Upsert(context.Context, *models.ChatMessage) error { return nil }

func (r *fakeMessages) GetByKey(context.Context, string) (*models.ChatMessage, error) {
	return nil, utils.ErrNotFound
}

func (r *fakeMessages) Recent(_ context.Context, limit int64) ([]models.ChatMessage, error) {
	r.limit = limit
	return []models.ChatMessage{{Key: "k1"}}, nil
}

func TestChatRunRelaysToHubAndArchive(t *testing.T) {
	ch := &fakeChannel{msgs: make(chan models.ChatMessage, 4)}
	archive := &fakeArchiver{}
	hub := events.NewHub(16)
	feed, unsub := hub.Subscribe()
	defer unsub()

	s := NewChatService(ch, archive, nil, hub, logger.Discard())
	ch.msgs <- models.ChatMessage{Key: "k1", Type: models.MessageText, AuthorID: "u", Content: "hi"}
	ch.msgs <- models.ChatMessage{Key: "k2", Type: models.MessageImage, AuthorID: "u", Content: "url"}
	close(ch.msgs)

	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(archive.got) != 2 {
		t.Errorf("archived = %d", len(archive.got))
	}
	if got := collect(feed, events.TypeMessage, 50*time.Millisecond); len(got) != 2 {
		t.Errorf("message events = %d", len(got))
	}
}

func TestChatRunWithoutArchive(t *testing.T) {
	ch := &fakeChannel{msgs: make(chan models.ChatMessage, 1)}
	ch.msgs <- models.ChatMessage{Key: "k1", Type: models.MessageText, AuthorID: "u", Content: "hi"}
	close(ch.msgs)
	if err := NewChatService(ch, nil, nil, nil, logger.Discard()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestChatHistory(t *testing.T) {
	ch := &fakeChannel{}
	if _, err := NewChatService(ch, nil, nil, nil, logger.Discard()).History(context.Background(), 10); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("History without archive = %v", err)
	}

	repo := &fakeMessages{}
	s := NewChatService(ch, nil, repo, nil, logger.Discard())

	if _, err := s.History(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if repo.limit != DefaultHistoryLimit {
		t.Errorf("default limit = %d", repo.limit)
	}
	if _, err := s.History(context.Background(), MaxHistoryLimit+1); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("oversized limit = %v", err)
	}
}

func TestChatSendTextDelegates(t *testing.T) {
	ch := &fakeChannel{}
	if err := NewChatService(ch, nil, nil, nil, logger.Discard()).SendText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if len(ch.texts) != 1 || ch.texts[0] != "hello" {
		t.Errorf("texts = %v", ch.texts)
	}
}
