package services

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/models"
	mongorepo "github.com/yoockh/livevoice/internal/repositories/mongo"
	"github.com/yoockh/livevoice/internal/utils"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// MessageChannel is the chat side of the transport adapter.
type MessageChannel interface {
	PublishText(ctx context.Context, text string) error
	PublishImage(ctx context.Context, filename, contentType string, r io.Reader) error
	SubscribeMessages(ctx context.Context) (<-chan models.ChatMessage, error)
}

// Archiver accepts observed messages for durable storage.
type Archiver interface {
	Enqueue(msg models.ChatMessage) bool
}

type ChatService interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, filename, contentType string, r io.Reader) error
	// Run relays incoming messages to the hub and the archive until ctx ends.
	Run(ctx context.Context) error
	History(ctx context.Context, limit int64) ([]models.ChatMessage, error)
}

type chatService struct {
	channel  MessageChannel
	archive  Archiver
	messages mongorepo.MessageRepository
	hub      *events.Hub
	log      *logrus.Logger
}

// NewChatService builds the chat relay. archive and messages may be nil
// when no archive database is configured.
func NewChatService(channel MessageChannel, archive Archiver, messages mongorepo.MessageRepository, hub *events.Hub, log *logrus.Logger) ChatService {
	return &chatService{channel: channel, archive: archive, messages: messages, hub: hub, log: log}
}

func (s *chatService) SendText(ctx context.Context, text string) error {
	return s.channel.PublishText(ctx, text)
}

func (s *chatService) SendImage(ctx context.Context, filename, contentType string, r io.Reader) error {
	return s.channel.PublishImage(ctx, filename, contentType, r)
}

func (s *chatService) Run(ctx context.Context) error {
	msgs, err := s.channel.SubscribeMessages(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			s.hub.Publish(events.TypeMessage, m)
			if s.archive != nil && !s.archive.Enqueue(m) {
				s.log.WithField("key", m.Key).Warn("archive queue full, message not archived")
			}
		}
	}
}

func (s *chatService) History(ctx context.Context, limit int64) ([]models.ChatMessage, error) {
	const op = "ChatService.History"

	if s.messages == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "message archive is not configured", nil)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, utils.E(utils.CodeInvalidArgument, op, "limit is too large", nil)
	}
	out, err := s.messages.Recent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	return out, nil
}
