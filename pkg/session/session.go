package session

import (
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/google/uuid"
)

// Change classifies a record mutation.
type Change string

const (
	Added   Change = "added"
	Updated Change = "updated"
	Removed Change = "removed"
)

// Observer is notified after a record mutation has been applied.
// It receives a copy; mutating it has no effect on the session.
type Observer func(change Change, rec domain.Record)

// Session is the ordered record log of one node conversation.
// Records are appended in arrival order and are immutable once sealed.
type Session struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	records  []*domain.Record

	observers map[int]Observer
	nextObs   int

	now func() time.Time
}

// New creates an empty session.
func New() *Session {
	return &Session{
		observers: make(map[int]Observer),
		now:       time.Now,
	}
}

// Subscribe registers an observer and returns a function removing it.
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// mutate applies fn under the record lock, then notifies observers in mutation order.
func (s *Session) mutate(fn func() (Change, *domain.Record)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	change, rec := fn()
	if rec == nil {
		s.mu.Unlock()
		return
	}
	snapshot := rec.Clone()
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if o, ok := s.observers[i]; ok {
			observers = append(observers, o)
		}
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(change, snapshot)
	}
}

// Append adds a record and returns its ID. Missing IDs and timestamps are filled in.
func (s *Session) Append(rec domain.Record) string {
	r := rec.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Time.IsZero() {
		r.Time = s.now()
	}
	s.mutate(func() (Change, *domain.Record) {
		s.records = append(s.records, &r)
		return Added, &r
	})
	return r.ID
}

// Update mutates an open record in place. Sealed or unknown records are left untouched.
func (s *Session) Update(id string, fn func(*domain.Record)) bool {
	applied := false
	s.mutate(func() (Change, *domain.Record) {
		r := s.find(id)
		if r == nil || r.Sealed {
			return "", nil
		}
		fn(r)
		applied = true
		return Updated, r
	})
	return applied
}

// Remove deletes a record.
func (s *Session) Remove(id string) {
	s.mutate(func() (Change, *domain.Record) {
		for i, r := range s.records {
			if r.ID == id {
				s.records = append(s.records[:i], s.records[i+1:]...)
				return Removed, r
			}
		}
		return "", nil
	})
}

// Seal marks every open record as sealed.
func (s *Session) Seal() {
	for _, r := range s.Records() {
		if !r.Sealed {
			s.Update(r.ID, func(r *domain.Record) { r.Sealed = true })
		}
	}
}

func (s *Session) find(id string) *domain.Record {
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *Session) Get(id string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		return r.Clone(), true
	}
	return domain.Record{}, false
}

// Records returns copies of every record in order.
func (s *Session) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Reset drops every record. Observers stay registered.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Restore replaces the records, sealing them.
func (s *Session) Restore(recs []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]*domain.Record, len(recs))
	for i := range recs {
		r := recs[i].Clone()
		r.Sealed = true
		s.records[i] = &r
	}
}

// Filter decides whether a record is visible to the model.
type Filter func(domain.Record) bool

// Transcript renders the records that belong in the model context as "sender: content" lines.
func (s *Session) Transcript(filter Filter) string {
	var sb strings.Builder
	for _, r := range s.Records() {
		if !r.InContext {
			continue
		}
		if filter != nil && !filter(r) {
			continue
		}
		sb.WriteString(r.Sender)
		sb.WriteString(": ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
