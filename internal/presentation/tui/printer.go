package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/muesli/termenv"
)

var stateColors = map[domain.State]string{
	domain.StateExecuting: "#60a5fa",
	domain.StateComplete:  "#34d399",
	domain.StateError:     "#f87171",
}

// Printer writes traversal progress for a human reader.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	profile termenv.Profile
	render  func(string) (string, error)
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithMarkdown renders conversational records through render.
func WithMarkdown(render func(string) (string, error)) PrinterOption {
	return func(p *Printer) { p.render = render }
}

// WithProfile forces a color profile, e.g. termenv.Ascii for plain output.
func WithProfile(profile termenv.Profile) PrinterOption {
	return func(p *Printer) { p.profile = profile }
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{out: out, profile: termenv.NewOutput(out).ColorProfile()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Hooks prints node transitions and displayable records once they are sealed.
func (p *Printer) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.NodeEvent) { p.StateChange(e) },
		OnRecord: func(_ context.Context, e *domain.RecordEvent) {
			if e.Record.Sealed && e.Record.InDisplay {
				p.Record(e.Node, e.Record)
			}
		},
	}
}

// StateChange prints one transition. Queued and Ready transitions are skipped.
func (p *Printer) StateChange(e *domain.NodeEvent) {
	color, ok := stateColors[e.To]
	if !ok {
		return
	}
	line := fmt.Sprintf("%-9s %s (%s)", e.To, e.Node, e.Kind)
	if e.Duration > 0 {
		line += fmt.Sprintf(" in %s", e.Duration.Round(1e6))
	}
	if e.Message != "" {
		line += ": " + e.Message
	}
	p.println(p.profile.String(line).Foreground(p.profile.Color(color)).String())
}

// Record prints a record. Artifacts are summarized by file name.
func (p *Printer) Record(node string, r domain.Record) {
	sender := p.profile.String(r.Sender + ":").Bold().String()
	switch r.Kind {
	case domain.RecordArtifact:
		name := r.Metadata[domain.MetaFilename]
		if name == "" {
			name = string(r.Artifact())
		}
		p.println(fmt.Sprintf("%s [%s] %s (%d bytes)", sender, r.Artifact(), name, len(r.Content)))
	default:
		body := strings.TrimSpace(r.Content)
		if p.render != nil && r.Kind == domain.RecordConversational {
			if out, err := p.render(body); err == nil {
				body = strings.TrimRight(out, "\n")
			}
		}
		p.println(sender + "\n" + body)
	}
}

// Status prints a one-line summary.
func (p *Printer) Status(st *domain.Status) {
	counts := make(map[domain.State]int)
	for _, n := range st.Nodes {
		counts[n.State]++
	}
	where := "done"
	if !st.Done {
		where = "at " + domain.FormatPath(st.Cursor)
		if len(st.Cursor) == 0 {
			where = "at root"
		}
	}
	p.println(fmt.Sprintf("%d nodes: %d complete, %d error, %d pending (%s)",
		len(st.Nodes), counts[domain.StateComplete], counts[domain.StateError],
		counts[domain.StateQueued]+counts[domain.StateReady], where))
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}
