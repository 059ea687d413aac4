package session_test

import (
	"testing"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_MutationsNotifyAfterApply(t *testing.T) {
	s := session.New()

	var seen []string
	cancel := s.Subscribe(func(change session.Change, rec domain.Record) {
		// The stored record already reflects the change when observers run.
		stored, ok := s.Get(rec.ID)
		if change == session.Removed {
			assert.False(t, ok)
		} else {
			require.True(t, ok)
			assert.Equal(t, rec.Content, stored.Content)
		}
		seen = append(seen, string(change)+":"+rec.Content)
	})

	id := s.Append(domain.Record{Sender: "model", Kind: domain.RecordConversational})
	require.NotEmpty(t, id)
	assert.True(t, s.Update(id, func(r *domain.Record) { r.Content = "hi" }))
	s.Remove(id)

	assert.Equal(t, []string{"added:", "updated:hi", "removed:hi"}, seen)

	cancel()
	s.Append(domain.Record{Content: "quiet"})
	assert.Len(t, seen, 3)
}

func TestSession_SealedRecordsAreImmutable(t *testing.T) {
	s := session.New()
	id := s.Append(domain.Record{Content: "a"})
	s.Seal()

	assert.False(t, s.Update(id, func(r *domain.Record) { r.Content = "b" }))
	rec, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "a", rec.Content)
	assert.True(t, rec.Sealed)
	assert.False(t, s.Update("unknown", func(*domain.Record) {}))
}

func TestSession_TranscriptAndRestore(t *testing.T) {
	s := session.New()
	s.Append(domain.Record{Sender: "user", Content: "question", InContext: true})
	s.Append(domain.Record{Sender: "system", Content: "hidden", InContext: false})
	s.Append(domain.Record{Sender: "model", Content: "answer", InContext: true, Metadata: map[string]string{domain.MetaPhase: "x"}})

	assert.Equal(t, "user: question\nmodel: answer\n", s.Transcript(nil))
	noPhase := func(r domain.Record) bool { return r.Metadata[domain.MetaPhase] == "" }
	assert.Equal(t, "user: question\n", s.Transcript(noPhase))

	other := session.New()
	other.Restore(s.Records())
	assert.Equal(t, 3, other.Len())
	for _, r := range other.Records() {
		assert.True(t, r.Sealed)
	}

	other.Reset()
	assert.Zero(t, other.Len())
}
