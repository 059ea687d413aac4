package tui_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tasktree/internal/presentation/tui"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_StateChange(t *testing.T) {
	var buf bytes.Buffer
	p := tui.NewPrinter(&buf, tui.WithProfile(termenv.Ascii))

	p.StateChange(&domain.NodeEvent{Node: "setup", Kind: domain.KindScript, To: domain.StateReady})
	p.StateChange(&domain.NodeEvent{Node: "setup", Kind: domain.KindScript, To: domain.StateComplete, Duration: 1500 * time.Millisecond})
	p.StateChange(&domain.NodeEvent{Node: "draft", Kind: domain.KindModel, To: domain.StateError, Message: "boom"})

	assert.Equal(t, "complete  setup (script) in 1.5s\nerror     draft (model): boom\n", buf.String())
}

func TestPrinter_Records(t *testing.T) {
	var buf bytes.Buffer
	upper := func(s string) (string, error) { return strings.ToUpper(s) + "\n", nil }
	p := tui.NewPrinter(&buf, tui.WithProfile(termenv.Ascii), tui.WithMarkdown(upper))
	hooks := p.Hooks()

	hooks.OnRecord(context.Background(), &domain.RecordEvent{Node: "draft", Record: domain.Record{
		Sender: "assistant", Content: "partial", Kind: domain.RecordConversational, InDisplay: true,
	}})
	hooks.OnRecord(context.Background(), &domain.RecordEvent{Node: "draft", Record: domain.Record{
		Sender: "assistant", Content: "hello", Kind: domain.RecordConversational, InDisplay: true, Sealed: true,
	}})
	hooks.OnRecord(context.Background(), &domain.RecordEvent{Node: "draft", Record: domain.Record{
		Sender: "system", Content: "hidden", Kind: domain.RecordInstruction, Sealed: true,
	}})
	hooks.OnRecord(context.Background(), &domain.RecordEvent{Node: "draft", Record: domain.Record{
		Sender: "assistant", Content: "abc", Kind: domain.RecordArtifact, InDisplay: true, Sealed: true,
		Metadata: map[string]string{domain.MetaType: string(domain.ArtifactFile), domain.MetaFilename: "a.go"},
	}})

	out := buf.String()
	assert.NotContains(t, out, "partial")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "assistant:\nHELLO\n")
	assert.Contains(t, out, "[file] a.go (3 bytes)")
}

func TestPrinter_Status(t *testing.T) {
	var buf bytes.Buffer
	p := tui.NewPrinter(&buf, tui.WithProfile(termenv.Ascii))
	p.Status(&domain.Status{Cursor: []int{1}, Nodes: []domain.NodeStatus{
		{State: domain.StateComplete}, {State: domain.StateComplete}, {State: domain.StateError}, {State: domain.StateQueued},
	}})
	p.Status(&domain.Status{Done: true})
	assert.Equal(t, "4 nodes: 2 complete, 1 error, 1 pending (at 1)\n0 nodes: 0 complete, 0 error, 0 pending (done)\n", buf.String())
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|")
}
