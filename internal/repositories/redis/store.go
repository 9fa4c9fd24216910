// Package redis implements transport.Store on Redis.
//
// Layout, for a node at path p under the key prefix:
//
//	h:p  hash of p's scalar fields (JSON values)
//	c:p  set of p's named children
//	a:p  stream announcing p's children: {k: name} for named children,
//	     {v: json} for appended ones (the entry id is the child key)
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/livevoice/internal/transport"
)

const (
	DefaultPrefix    = "livevoice:"
	DefaultRetention = 10 * time.Minute
	DefaultBlock     = 2 * time.Second
	DefaultMaxLen    = 10000
)

type Options struct {
	Prefix string
	// Retention is refreshed on every key under RetainRoots it touches.
	Retention   time.Duration
	RetainRoots []string
	// Block bounds each XREAD so subscriptions notice cancellation.
	Block  time.Duration
	MaxLen int64
}

type Store struct {
	rdb  redis.UniversalClient
	opts Options
	log  *logrus.Logger
}

var _ transport.Store = (*Store)(nil)

func NewStore(rdb redis.UniversalClient, opts Options, log *logrus.Logger) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.RetainRoots == nil {
		opts.RetainRoots = []string{transport.StreamPath}
	}
	if opts.Block <= 0 {
		opts.Block = DefaultBlock
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = DefaultMaxLen
	}
	if log == nil {
		log = logrus.New()
	}
	return &Store{rdb: rdb, opts: opts, log: log}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) hashKey(p string) string     { return s.opts.Prefix + "h:" + p }
func (s *Store) childrenKey(p string) string { return s.opts.Prefix + "c:" + p }
func (s *Store) streamKey(p string) string   { return s.opts.Prefix + "a:" + p }

func (s *Store) AppendChild(ctx context.Context, p string, value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	p = transport.CleanPath(p)
	if err := s.announcePath(ctx, p); err != nil {
		return "", err
	}

	key, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey(p),
		MaxLen: s.opts.MaxLen,
		Values: map[string]any{"v": string(b)},
	}).Result()
	if err != nil {
		return "", err
	}
	s.retain(ctx, p, s.streamKey(p))
	return key, nil
}

func (s *Store) Write(ctx context.Context, p string, value any) error {
	parent, name := transport.SplitPath(p)
	return s.Update(ctx, parent, map[string]any{name: value})
}

func (s *Store) Update(ctx context.Context, p string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	p = transport.CleanPath(p)
	values := make(map[string]any, len(fields))
	names := make([]string, 0, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		values[k] = string(b)
		names = append(names, k)
	}

	if err := s.rdb.HSet(ctx, s.hashKey(p), values).Err(); err != nil {
		return err
	}
	s.retain(ctx, p, s.hashKey(p))

	// the node exists with its fields before anyone is told about it
	if err := s.announcePath(ctx, p); err != nil {
		return err
	}
	return s.announce(ctx, p, names)
}

// announcePath makes every segment of p a named child of its parent.
func (s *Store) announcePath(ctx context.Context, p string) error {
	if p == "" {
		return nil
	}
	parent, name := transport.SplitPath(p)
	if err := s.announcePath(ctx, parent); err != nil {
		return err
	}
	return s.announce(ctx, parent, []string{name})
}

func (s *Store) announce(ctx context.Context, parent string, names []string) error {
	cmds := make([]*redis.IntCmd, len(names))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, n := range names {
			cmds[i] = pipe.SAdd(ctx, s.childrenKey(parent), n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var fresh []string
	for i, c := range cmds {
		if c.Val() == 1 {
			fresh = append(fresh, names[i])
		}
	}
	if len(fresh) > 0 {
		_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, n := range fresh {
				pipe.XAdd(ctx, &redis.XAddArgs{
					Stream: s.streamKey(parent),
					MaxLen: s.opts.MaxLen,
					Values: map[string]any{"k": n},
				})
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	s.retain(ctx, parent, s.childrenKey(parent), s.streamKey(parent))
	return nil
}

func (s *Store) retained(p string) bool {
	root, _, _ := strings.Cut(p, "/")
	for _, r := range s.opts.RetainRoots {
		if root == r {
			return true
		}
	}
	return false
}

// retain refreshes the TTL of keys that belong to a retained subtree.
// Failures only delay cleanup.
func (s *Store) retain(ctx context.Context, p string, keys ...string) {
	if !s.retained(p) {
		return
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Expire(ctx, k, s.opts.Retention)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("path", p).Debug("refreshing retention failed")
	}
}

func (s *Store) DeleteSubtree(ctx context.Context, p string) error {
	p = transport.CleanPath(p)
	paths, err := s.descendants(ctx, p)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(paths)*3)
	for _, d := range paths {
		keys = append(keys, s.hashKey(d), s.childrenKey(d), s.streamKey(d))
	}
	parent, name := transport.SplitPath(p)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		if p != "" {
			pipe.HDel(ctx, s.hashKey(parent), name)
			pipe.SRem(ctx, s.childrenKey(parent), name)
		}
		return nil
	})
	return err
}

func (s *Store) descendants(ctx context.Context, p string) ([]string, error) {
	out := []string{p}
	for i := 0; i < len(out); i++ {
		names, err := s.rdb.SMembers(ctx, s.childrenKey(out[i])).Result()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, joinPath(out[i], n))
		}
	}
	return out, nil
}

func (s *Store) SubscribeChildAdded(ctx context.Context, p string, limitToLast int) (<-chan transport.Child, error) {
	p = transport.CleanPath(p)
	stream := s.streamKey(p)

	var backlog []redis.XMessage
	var err error
	if limitToLast > 0 {
		backlog, err = s.rdb.XRevRangeN(ctx, stream, "+", "-", int64(limitToLast)).Result()
		for i, j := 0, len(backlog)-1; i < j; i, j = i+1, j-1 {
			backlog[i], backlog[j] = backlog[j], backlog[i]
		}
	} else {
		backlog, err = s.rdb.XRange(ctx, stream, "-", "+").Result()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	lastID := "0-0"
	if len(backlog) > 0 {
		lastID = backlog[len(backlog)-1].ID
	}

	out := make(chan transport.Child)
	go func() {
		defer close(out)
		log := s.log.WithField("path", p)

		for _, msg := range backlog {
			c, ok := s.resolve(ctx, p, msg, true)
			if !ok {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}

		for {
			if ctx.Err() != nil {
				return
			}
			res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   100,
				Block:   s.opts.Block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("xread failed")
				select {
				case <-time.After(500 * time.Millisecond):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, st := range res {
				for _, msg := range st.Messages {
					lastID = msg.ID
					c, ok := s.resolve(ctx, p, msg, false)
					if !ok {
						continue
					}
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// resolve turns an announcement into a Child. Replayed named children that
// have since been deleted are skipped.
func (s *Store) resolve(ctx context.Context, p string, msg redis.XMessage, replay bool) (transport.Child, bool) {
	if v, ok := msg.Values["v"].(string); ok {
		return transport.Child{Key: msg.ID, Value: json.RawMessage(v)}, true
	}
	name, _ := msg.Values["k"].(string)
	if name == "" {
		return transport.Child{}, false
	}
	if replay {
		ok, err := s.rdb.SIsMember(ctx, s.childrenKey(p), name).Result()
		if err != nil || !ok {
			return transport.Child{}, false
		}
	}

	if v, err := s.rdb.HGet(ctx, s.hashKey(p), name).Result(); err == nil {
		return transport.Child{Key: name, Value: json.RawMessage(v)}, true
	}
	fields, err := s.rdb.HGetAll(ctx, s.hashKey(joinPath(p, name))).Result()
	if err != nil {
		s.log.WithError(err).WithField("path", joinPath(p, name)).Warn("reading announced child failed")
		return transport.Child{}, false
	}
	obj := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		obj[k] = json.RawMessage(v)
	}
	b, _ := json.Marshal(obj)
	return transport.Child{Key: name, Value: b}, true
}

func joinPath(a, b string) string {
	if a == "" {
		return b
	}
	return a + "/" + b
}
