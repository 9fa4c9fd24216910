// Package memory is an in-process transport.Store for single-node use and tests.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yoockh/livevoice/internal/transport"
)

var ErrClosed = errors.New("memory store closed")

type node struct {
	value    json.RawMessage // set on leaves only
	children map[string]*node
	order    []string
}

func (n *node) leaf() bool { return n.children == nil }

func (n *node) child(name string) *node {
	if n.children == nil {
		return nil
	}
	return n.children[name]
}

func (n *node) addChild(name string, c *node) {
	if n.children == nil {
		n.children = map[string]*node{}
		n.value = nil
	}
	n.children[name] = c
	n.order = append(n.order, name)
}

func (n *node) removeChild(name string) {
	if _, ok := n.children[name]; !ok {
		return
	}
	delete(n.children, name)
	for i, k := range n.order {
		if k == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// snapshot is what child-added listeners receive.
func (n *node) snapshot() json.RawMessage {
	if n.leaf() {
		return n.value
	}
	fields := map[string]json.RawMessage{}
	for name, c := range n.children {
		if c.leaf() {
			fields[name] = c.value
		}
	}
	b, _ := json.Marshal(fields)
	return b
}

func (n *node) full() any {
	if n.leaf() {
		return n.value
	}
	out := make(map[string]any, len(n.children))
	for name, c := range n.children {
		out[name] = c.full()
	}
	return out
}

type created struct {
	parent string
	name   string
	node   *node
}

// Store is a tree of JSON values with child-added notifications.
type Store struct {
	mu     sync.Mutex
	root   *node
	seq    int64
	now    func() time.Time
	subs   map[string]map[*subscriber]struct{}
	closed bool

	calls atomic.Int64
}

func NewStore() *Store {
	return &Store{
		root: &node{children: map[string]*node{}},
		now:  time.Now,
		subs: map[string]map[*subscriber]struct{}{},
	}
}

var _ transport.Store = (*Store)(nil)

// Calls counts the write operations issued against the store.
func (s *Store) Calls() int64 { return s.calls.Load() }

func (s *Store) AppendChild(ctx context.Context, p string, value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	s.calls.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.seq++
	key := fmt.Sprintf("%013d-%06d", s.now().UnixMilli(), s.seq)
	s.emitLocked(s.setLocked(joinPath(p, key), b))
	s.mu.Unlock()
	return key, nil
}

func (s *Store) Write(ctx context.Context, p string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.calls.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.emitLocked(s.setLocked(p, b))
	s.mu.Unlock()
	return nil
}

func (s *Store) Update(ctx context.Context, p string, fields map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		encoded[k] = b
	}
	s.calls.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	var events []created
	for k, b := range encoded {
		events = append(events, s.setLocked(joinPath(p, k), b)...)
	}
	s.emitLocked(events)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteSubtree(ctx context.Context, p string) error {
	s.calls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	p = transport.CleanPath(p)
	if p == "" {
		s.root = &node{children: map[string]*node{}}
		return nil
	}
	parent, name := transport.SplitPath(p)
	if pn := s.lookupLocked(parent); pn != nil {
		pn.removeChild(name)
	}
	return nil
}

// Get returns the JSON of the subtree at p.
func (s *Store) Get(p string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.lookupLocked(transport.CleanPath(p))
	if n == nil {
		return nil, false
	}
	if n.leaf() {
		return n.value, true
	}
	b, _ := json.Marshal(n.full())
	return b, true
}

func (s *Store) SubscribeChildAdded(ctx context.Context, p string, limitToLast int) (<-chan transport.Child, error) {
	p = transport.CleanPath(p)
	sub := &subscriber{wake: make(chan struct{}, 1), done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if n := s.lookupLocked(p); n != nil && !n.leaf() {
		keys := n.order
		if limitToLast > 0 && len(keys) > limitToLast {
			keys = keys[len(keys)-limitToLast:]
		}
		for _, k := range keys {
			sub.queue = append(sub.queue, transport.Child{Key: k, Value: n.children[k].snapshot()})
		}
	}
	if s.subs[p] == nil {
		s.subs[p] = map[*subscriber]struct{}{}
	}
	s.subs[p][sub] = struct{}{}
	s.mu.Unlock()

	out := make(chan transport.Child)
	go func() {
		defer s.unsubscribe(p, sub)
		sub.run(ctx, out)
	}()
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, set := range s.subs {
		for sub := range set {
			close(sub.done)
		}
	}
	s.subs = map[string]map[*subscriber]struct{}{}
	return nil
}

func (s *Store) unsubscribe(p string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[p]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, p)
		}
	}
}

// setLocked stores value at p and reports every node it had to create.
func (s *Store) setLocked(p string, value json.RawMessage) []created {
	segs := strings.Split(transport.CleanPath(p), "/")
	var events []created
	cur, curPath := s.root, ""
	for i, seg := range segs {
		last := i == len(segs)-1
		next := cur.child(seg)
		if next == nil {
			next = &node{}
			if !last {
				next.children = map[string]*node{}
			}
			cur.addChild(seg, next)
			events = append(events, created{parent: curPath, name: seg, node: next})
		} else if !last && next.leaf() {
			next.children = map[string]*node{}
			next.value = nil
		}
		if last {
			next.value = value
			next.children = nil
			next.order = nil
		}
		cur, curPath = next, joinPath(curPath, seg)
	}
	return events
}

func (s *Store) lookupLocked(p string) *node {
	if p == "" {
		return s.root
	}
	cur := s.root
	for _, seg := range strings.Split(p, "/") {
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// emitLocked notifies listeners once all writes of an operation are applied.
func (s *Store) emitLocked(events []created) {
	for _, ev := range events {
		c := transport.Child{Key: ev.name, Value: ev.node.snapshot()}
		for sub := range s.subs[ev.parent] {
			sub.push(c)
		}
	}
}

func joinPath(a, b string) string {
	a = transport.CleanPath(a)
	if a == "" {
		return b
	}
	return a + "/" + b
}

type subscriber struct {
	mu    sync.Mutex
	queue []transport.Child
	wake  chan struct{}
	done  chan struct{}
}

func (s *subscriber) push(c transport.Child) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run(ctx context.Context, out chan<- transport.Child) {
	defer close(out)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			c := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			select {
			case out <- c:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			continue
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
