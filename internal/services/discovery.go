package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/events"
	"github.com/yoockh/livevoice/internal/identity"
	"github.com/yoockh/livevoice/internal/metrics"
	"github.com/yoockh/livevoice/internal/models"
	"github.com/yoockh/livevoice/internal/playback"
	"github.com/yoockh/livevoice/internal/transport"
)

const (
	DefaultRecentWindow = 30 * time.Second
	DefaultQuietTimeout = 2 * time.Second

	ResultFollowed  = "followed"
	ResultSelf      = "self"
	ResultStale     = "stale"
	ResultDuplicate = "duplicate"
)

// SessionSource is the receive side of the transport adapter.
type SessionSource interface {
	SubscribeSessions(ctx context.Context) (<-chan models.StreamSession, error)
	SubscribeFragments(ctx context.Context, sessionID string, tail int) (<-chan models.AudioFragment, error)
}

type FragmentPlayer interface {
	PlayFragment(ctx context.Context, b64 string) (playback.Scheduled, error)
}

type DiscoveryConfig struct {
	RecentWindow time.Duration
	ChunkTail    int
	MaxPending   int
	FlushAfter   time.Duration
	// IdleTimeout ends a follower that has seen no fragment for this long.
	IdleTimeout time.Duration
}

// Discovery watches announced sessions and plays the live tail of remote ones.
type Discovery struct {
	cfg      DiscoveryConfig
	source   SessionSource
	player   FragmentPlayer
	ident    *identity.Context
	speaking *SpeakingIndicator
	hub      *events.Hub
	log      *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu        sync.Mutex
	following map[string]bool
	wg        sync.WaitGroup
}

func NewDiscovery(cfg DiscoveryConfig, source SessionSource, player FragmentPlayer, ident *identity.Context,
	speaking *SpeakingIndicator, hub *events.Hub, log *logrus.Logger, m *metrics.Metrics) *Discovery {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	if cfg.ChunkTail <= 0 {
		cfg.ChunkTail = transport.DefaultChunkTail
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = cfg.RecentWindow
	}
	return &Discovery{
		cfg:       cfg,
		source:    source,
		player:    player,
		ident:     ident,
		speaking:  speaking,
		hub:       hub,
		log:       log,
		metrics:   m,
		now:       time.Now,
		following: map[string]bool{},
	}
}

// Run follows sessions until ctx ends or the subscription closes, then waits for followers.
func (d *Discovery) Run(ctx context.Context) error {
	sessions, err := d.source.SubscribeSessions(ctx)
	if err != nil {
		return err
	}
	defer d.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-sessions:
			if !ok {
				return nil
			}
			d.Observe(ctx, s)
		}
	}
}

// Observe classifies one announced session and starts following it when it is
// remote and recent.
func (d *Discovery) Observe(ctx context.Context, s models.StreamSession) string {
	log := d.log.WithFields(logrus.Fields{"session_id": s.SessionID, "owner_id": s.OwnerID})

	result := ResultFollowed
	switch {
	case s.IsOwnedBy(d.ident.ID()):
		result = ResultSelf
	case !s.IsRecent(d.now(), d.cfg.RecentWindow):
		result = ResultStale
	}
	if result == ResultFollowed {
		d.mu.Lock()
		if d.following[s.SessionID] {
			result = ResultDuplicate
		} else {
			d.following[s.SessionID] = true
		}
		d.mu.Unlock()
	}

	d.metrics.RecordSessionDiscovered(result)
	if result != ResultFollowed {
		log.WithField("result", result).Debug("session ignored")
		return result
	}

	log.WithField("owner_name", s.OwnerName).Info("remote stream started")
	d.hub.Publish(events.TypeStreamStart, map[string]string{"sessionId": s.SessionID, "ownerName": s.OwnerName})
	if d.speaking != nil {
		d.speaking.Show(s.OwnerName)
	}

	d.wg.Add(1)
	d.metrics.AddFollowedSessions(1)
	go func() {
		defer d.wg.Done()
		defer d.metrics.AddFollowedSessions(-1)
		defer func() {
			d.mu.Lock()
			delete(d.following, s.SessionID)
			d.mu.Unlock()
		}()
		d.follow(ctx, s, log)
	}()
	return result
}

// Following reports whether sessionID currently has a follower.
func (d *Discovery) Following(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.following[sessionID]
}

func (d *Discovery) follow(ctx context.Context, s models.StreamSession, log *logrus.Entry) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frags, err := d.source.SubscribeFragments(ctx, s.SessionID, d.cfg.ChunkTail)
	if err != nil {
		log.WithError(err).Warn("fragment subscription failed")
		return
	}

	seq := playback.NewSequencer(d.cfg.MaxPending, d.cfg.FlushAfter)
	seq.OnDrop = d.metrics.RecordSequencerDrop

	flush := time.NewTicker(seq.FlushAfter / 2)
	defer flush.Stop()
	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			log.Debug("session went quiet")
			return
		case <-flush.C:
			d.play(ctx, seq.Due(d.now()))
		case f, ok := <-frags:
			if !ok {
				return
			}
			d.metrics.RecordFragmentReceived()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.IdleTimeout)
			d.play(ctx, seq.Push(f, d.now()))
		}
	}
}

func (d *Discovery) play(ctx context.Context, ready []models.AudioFragment) {
	for _, f := range ready {
		b64 := f.Base64()
		d.hub.Publish(events.TypeStreamChunk, map[string]any{"seq": f.Seq, "mime": f.MimeType, "data": b64})
		// decode failures are logged and counted by the player; the next fragment still plays
		_, _ = d.player.PlayFragment(ctx, b64)
	}
}
