package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/models"
	mongorepo "github.com/yoockh/livevoice/internal/repositories/mongo"
)

// ArchiveWorkerPool copies observed chat messages into the archive.
// Messages are idempotent by Key, so replays after a restart are harmless.
type ArchiveWorkerPool struct {
	Repo       mongorepo.MessageRepository
	NumWorkers int
	QueueSize  int
	Timeout    time.Duration // per insert

	Logger *logrus.Logger

	once  sync.Once
	queue chan models.ChatMessage
	wg    sync.WaitGroup
}

func (p *ArchiveWorkerPool) init() {
	p.once.Do(func() {
		if p.NumWorkers <= 0 {
			p.NumWorkers = 2
		}
		if p.QueueSize <= 0 {
			p.QueueSize = 256
		}
		if p.Timeout <= 0 {
			p.Timeout = 5 * time.Second
		}
		if p.Logger == nil {
			p.Logger = logrus.New()
		}
		p.queue = make(chan models.ChatMessage, p.QueueSize)
	})
}

// Enqueue hands msg to the pool without blocking. It reports false when the
// queue is full or msg is not archivable.
func (p *ArchiveWorkerPool) Enqueue(msg models.ChatMessage) bool {
	p.init()
	if msg.Key == "" || !msg.Valid() {
		return false
	}
	select {
	case p.queue <- msg:
		return true
	default:
		return false
	}
}

func (p *ArchiveWorkerPool) Start(ctx context.Context) error {
	if p.Repo == nil {
		return errors.New("ArchiveWorkerPool missing dependency: Repo must be set")
	}
	p.init()

	for i := 0; i < p.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	return nil
}

// Wait blocks until every worker has returned after ctx ended.
func (p *ArchiveWorkerPool) Wait() { p.wg.Wait() }

func (p *ArchiveWorkerPool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			p.handle(ctx, msg)
		}
	}
}

func (p *ArchiveWorkerPool) handle(ctx context.Context, msg models.ChatMessage) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Repo.Upsert(ctx, &msg); err != nil {
		p.Logger.WithError(err).WithFields(logrus.Fields{
			"key":  msg.Key,
			"type": msg.Type,
		}).Warn("archive insert failed")
		return
	}
	p.Logger.WithField("key", msg.Key).Debug("message archived")
}
