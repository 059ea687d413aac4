package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/session"
)

// Sessions holds the record log of every node that has conversed.
type Sessions struct {
	mu    sync.Mutex
	byKey map[*domain.Node]*session.Session
	hooks domain.LifecycleHooks
}

func newSessions(hooks domain.LifecycleHooks) *Sessions {
	return &Sessions{byKey: make(map[*domain.Node]*session.Session), hooks: hooks}
}

// For returns the session of n, creating it on first use.
func (s *Sessions) For(n *domain.Node) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byKey[n]; ok {
		return sess
	}
	sess := session.New()
	if s.hooks.OnRecord != nil {
		name := n.Name
		sess.Subscribe(func(change session.Change, rec domain.Record) {
			s.hooks.OnRecord(context.Background(), &domain.RecordEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRecord},
				Node:      name,
				Record:    rec,
			})
		})
	}
	s.byKey[n] = sess
	return sess
}

// Lookup returns the session of n without creating it.
func (s *Sessions) Lookup(n *domain.Node) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[n]
	return sess, ok
}

// Reset empties every session.
func (s *Sessions) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byKey {
		sess.Reset()
	}
}

// Snapshot maps node paths to their records.
func (s *Sessions) Snapshot(root *domain.Node) map[string][]domain.Record {
	out := make(map[string][]domain.Record)
	walkPaths(root, nil, func(path []int, n *domain.Node) {
		if sess, ok := s.Lookup(n); ok && sess.Len() > 0 {
			out[domain.FormatPath(path)] = sess.Records()
		}
	})
	return out
}

// Restore loads transcripts keyed by node path.
func (s *Sessions) Restore(root *domain.Node, transcripts map[string][]domain.Record) {
	walkPaths(root, nil, func(path []int, n *domain.Node) {
		if recs, ok := transcripts[domain.FormatPath(path)]; ok {
			s.For(n).Restore(recs)
		}
	})
}

func walkPaths(n *domain.Node, path []int, fn func([]int, *domain.Node)) {
	fn(path, n)
	for i, c := range n.Children {
		walkPaths(c, append(append([]int{}, path...), i), fn)
	}
}
