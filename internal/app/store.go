package app

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/livevoice/config"
	"github.com/yoockh/livevoice/internal/repositories/memory"
	redisrepo "github.com/yoockh/livevoice/internal/repositories/redis"
	"github.com/yoockh/livevoice/internal/transport"
)

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (transport.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Info("using in-process store, only local participants can hear each other")
		return memory.NewStore(), nil
	case config.BackendRedis:
		rdb, err := config.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return redisrepo.NewStore(rdb, redisrepo.Options{
			Prefix:    cfg.KeyPrefix,
			Retention: cfg.StreamRetention,
		}, log), nil
	default:
		return nil, errors.New("unknown backend " + cfg.Backend)
	}
}

// offlineStore fails every operation with the backend init error.
type offlineStore struct{ err error }

func (s offlineStore) AppendChild(context.Context, string, any) (string, error) { return "", s.err }

func (s offlineStore) Write(context.Context, string, any) error { return s.err }

func (s offlineStore) Update(context.Context, string, map[string]any) error { return s.err }

func (s offlineStore) DeleteSubtree(context.Context, string) error { return s.err }

func (s offlineStore) SubscribeChildAdded(context.Context, string, int) (<-chan transport.Child, error) {
	return nil, s.err
}

func (s offlineStore) Close() error { return nil }

// playerWriter switches to discarding output after the player fails so the
// playback clock keeps running.
type playerWriter struct {
	mu   sync.Mutex
	w    io.Writer
	log  *logrus.Logger
	dead bool
}

func (p *playerWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead {
		return len(b), nil
	}
	if _, err := p.w.Write(b); err != nil {
		p.dead = true
		p.log.WithError(err).Error("audio player failed, remote audio is discarded")
	}
	return len(b), nil
}
