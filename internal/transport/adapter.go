package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/audio"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/storage"
	"github.com/yoockh/livevoice/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRetireDelay = 5 * time.Second
	deleteTimeout      = 10 * time.Second
)

// Adapter bridges capture output and chat actions to the Store and Uploader.
type Adapter struct {
	store   Store
	blobs   storage.Uploader
	ident   *identity.Context
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	announced map[string]bool
}

type Option func(*Adapter)

func WithNow(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Adapter) { a.metrics = m } }

func NewAdapter(store Store, blobs storage.Uploader, ident *identity.Context, log *logrus.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		store:     store,
		blobs:     blobs,
		ident:     ident,
		log:       log,
		now:       time.Now,
		announced: map[string]bool{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// PublishFragment refreshes the session metadata and appends frag to its chunk list.
// The first fragment of a session writes metadata before the chunk so the
// session is announced with its owner.
func (a *Adapter) PublishFragment(ctx context.Context, sessionID string, frag models.AudioFragment) error {
	const op = "Adapter.PublishFragment"

	me := a.ident.Participant()
	meta := map[string]any{
		"ownerId":   me.ID,
		"ownerName": me.Name,
		"timestamp": a.now().UnixMilli(),
	}
	appendChunk := func(ctx context.Context) error {
		_, err := a.timed(ctx, "append", func(ctx context.Context) (string, error) {
			return a.store.AppendChild(ctx, ChunksPath(sessionID), frag)
		})
		return err
	}
	writeMeta := func(ctx context.Context) error {
		_, err := a.timed(ctx, "update", func(ctx context.Context) (string, error) {
			return "", a.store.Update(ctx, SessionPath(sessionID), meta)
		})
		return err
	}

	a.mu.Lock()
	first := !a.announced[sessionID]
	a.announced[sessionID] = true
	a.mu.Unlock()

	var err error
	if first {
		if err = writeMeta(ctx); err == nil {
			err = appendChunk(ctx)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return writeMeta(gctx) })
		g.Go(func() error { return appendChunk(gctx) })
		err = g.Wait()
	}

	if err != nil {
		if first {
			a.mu.Lock()
			delete(a.announced, sessionID)
			a.mu.Unlock()
		}
		a.metrics.RecordFragmentPublished("failed")
		a.log.WithError(err).WithFields(logrus.Fields{"session_id": sessionID, "seq": frag.Seq}).Warn("fragment publish failed")
		return utils.E(utils.CodeTransport, op, "fragment publish failed", err)
	}
	a.metrics.RecordFragmentPublished("ok")
	return nil
}

// RetireSession deletes the session subtree after delay. The returned func cancels it.
func (a *Adapter) RetireSession(sessionID string, delay time.Duration) (cancel func() bool) {
	if delay <= 0 {
		delay = DefaultRetireDelay
	}
	t := time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()

		a.mu.Lock()
		delete(a.announced, sessionID)
		a.mu.Unlock()

		if err := a.store.DeleteSubtree(ctx, SessionPath(sessionID)); err != nil {
			a.log.WithError(err).WithField("session_id", sessionID).Warn("session cleanup failed")
			return
		}
		a.log.WithField("session_id", sessionID).Debug("session retired")
	})
	return t.Stop
}

// PublishFinalRecording uploads rec and posts an audio chat message pointing at it.
// Nothing is posted when the upload fails.
func (a *Adapter) PublishFinalRecording(ctx context.Context, rec models.Recording, transcript string) error {
	const op = "Adapter.PublishFinalRecording"

	if rec.Empty() {
		return utils.E(utils.CodeInvalidArgument, op, "recording is empty", nil)
	}
	me := a.ident.Participant()
	name := fmt.Sprintf("audios/%d_%s.%s", a.now().UnixMilli(), me.ID, audio.Extension(rec.MimeType))

	url, err := a.blobs.Upload(ctx, name, audio.BaseMime(rec.MimeType), bytes.NewReader(rec.Bytes()))
	if err != nil {
		a.metrics.RecordFinalRecording("upload_failed")
		a.log.WithError(err).WithField("session_id", rec.SessionID).Error("recording upload failed")
		return utils.E(utils.CodeTransport, op, "recording upload failed", err)
	}

	msg := a.message(models.MessageAudio, url)
	msg.Transcript = strings.TrimSpace(transcript)
	if err := a.postMessage(ctx, msg); err != nil {
		a.metrics.RecordFinalRecording("post_failed")
		return utils.E(utils.CodeTransport, op, "audio message post failed", err)
	}
	a.metrics.RecordFinalRecording("ok")
	return nil
}

// PublishText appends a text message. Blank text is a no-op.
func (a *Adapter) PublishText(ctx context.Context, text string) error {
	const op = "Adapter.PublishText"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := a.postMessage(ctx, a.message(models.MessageText, text)); err != nil {
		return utils.E(utils.CodeTransport, op, "text message post failed", err)
	}
	return nil
}

// PublishImage uploads the image and appends an image message pointing at it.
func (a *Adapter) PublishImage(ctx context.Context, filename, contentType string, r io.Reader) error {
	const op = "Adapter.PublishImage"

	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "" || filename == "." || filename == "/" {
		return utils.E(utils.CodeInvalidArgument, op, "filename is required", nil)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return utils.E(utils.CodeInvalidArgument, op, "not an image", nil)
	}

	name := fmt.Sprintf("images/%d_%s", a.now().UnixMilli(), filename)
	url, err := a.blobs.Upload(ctx, name, contentType, r)
	if err != nil {
		a.log.WithError(err).WithField("object", name).Error("image upload failed")
		return utils.E(utils.CodeTransport, op, "image upload failed", err)
	}
	if err := a.postMessage(ctx, a.message(models.MessageImage, url)); err != nil {
		return utils.E(utils.CodeTransport, op, "image message post failed", err)
	}
	return nil
}

// SubscribeMessages reports the last DefaultMessageTail messages, then new ones.
func (a *Adapter) SubscribeMessages(ctx context.Context) (<-chan models.ChatMessage, error) {
	return subscribe(ctx, a, MessagesPath, DefaultMessageTail, func(c Child) (models.ChatMessage, error) {
		var m models.ChatMessage
		err := json.Unmarshal(c.Value, &m)
		m.Key = c.Key
		if err == nil && !m.Valid() {
			err = fmt.Errorf("invalid message")
		}
		return m, err
	})
}

// SubscribeSessions reports every session announced under stream/.
func (a *Adapter) SubscribeSessions(ctx context.Context) (<-chan models.StreamSession, error) {
	return subscribe(ctx, a, StreamPath, 0, func(c Child) (models.StreamSession, error) {
		var s models.StreamSession
		err := json.Unmarshal(c.Value, &s)
		s.SessionID = c.Key
		return s, err
	})
}

// SubscribeFragments follows the live tail of one session's chunk list.
func (a *Adapter) SubscribeFragments(ctx context.Context, sessionID string, tail int) (<-chan models.AudioFragment, error) {
	if tail <= 0 {
		tail = DefaultChunkTail
	}
	return subscribe(ctx, a, ChunksPath(sessionID), tail, func(c Child) (models.AudioFragment, error) {
		var f models.AudioFragment
		err := json.Unmarshal(c.Value, &f)
		if err == nil && len(f.Data) == 0 {
			err = fmt.Errorf("fragment has no data")
		}
		return f, err
	})
}

func subscribe[T any](ctx context.Context, a *Adapter, p string, tail int, decode func(Child) (T, error)) (<-chan T, error) {
	const op = "Adapter.Subscribe"

	children, err := a.store.SubscribeChildAdded(ctx, p, tail)
	if err != nil {
		return nil, utils.E(utils.CodeConnection, op, "subscribe "+p, err)
	}
	out := make(chan T)
	go func() {
		defer close(out)
		for c := range children {
			v, err := decode(c)
			if err != nil {
				a.log.WithError(err).WithFields(logrus.Fields{"path": p, "key": c.Key}).Warn("skipping undecodable entry")
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *Adapter) message(t models.MessageType, content string) models.ChatMessage {
	me := a.ident.Participant()
	return models.ChatMessage{
		Type:       t,
		AuthorID:   me.ID,
		AuthorName: me.Name,
		Content:    content,
		Timestamp:  a.now().UnixMilli(),
	}
}

func (a *Adapter) postMessage(ctx context.Context, msg models.ChatMessage) error {
	_, err := a.timed(ctx, "append", func(ctx context.Context) (string, error) {
		return a.store.AppendChild(ctx, MessagesPath, msg)
	})
	if err != nil {
		a.log.WithError(err).WithField("type", msg.Type).Warn("message post failed")
		return err
	}
	a.metrics.RecordMessagePublished(string(msg.Type))
	return nil
}

func (a *Adapter) timed(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	start := time.Now()
	key, err := fn(ctx)
	a.metrics.RecordStoreWrite(op, time.Since(start).Seconds())
	return key, err
}
