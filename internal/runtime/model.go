package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/llm"
	"github.com/aretw0/tasktree/pkg/markup"
	"github.com/aretw0/tasktree/pkg/session"
)

// DefaultMaxTurns bounds one conversation when the continuation never says stop.
const DefaultMaxTurns = 16

type modelExecutor struct {
	svc *services

	// busy holds the nodes with a conversation in flight.
	busy sync.Map
}

func (m *modelExecutor) Execute(ctx context.Context, x *Exec, n *domain.Node) error {
	v, ok := n.Variant.(*domain.Model)
	if !ok {
		return fmt.Errorf("%w: node %q is not a model node", domain.ErrState, n.Name)
	}
	return m.converse(ctx, x, n, v, m.svc.continueFn, nil)
}

// converse runs turns until cont returns false. settle runs after the last turn
// and may still fail the node.
func (m *modelExecutor) converse(ctx context.Context, x *Exec, n *domain.Node, v *domain.Model, cont ContinuationFunc, settle func() error) error {
	if _, loaded := m.busy.LoadOrStore(n, struct{}{}); loaded {
		return fmt.Errorf("%w: %q already has a conversation in flight", domain.ErrBusy, n.Name)
	}
	defer m.busy.Delete(n)

	if err := x.Begin(ctx, n); err != nil {
		return err
	}
	if m.svc.streamer == nil {
		return x.Fail(ctx, n, &llm.Error{Kind: llm.KindUnsupportedDialect, Message: "no model backend configured"})
	}

	// Every execution starts from an empty transcript.
	sess := x.Session(n)
	sess.Reset()
	path, _ := x.Context().PathOf(n)
	tags := m.svc.tagsFor(n)

	if len(v.PromptTags) > 0 && m.svc.prompts != nil {
		prompts, err := m.svc.prompts.Find(ctx, v.PromptTags)
		if err != nil {
			return x.Fail(ctx, n, fmt.Errorf("prompt library: %w", err))
		}
		for _, p := range prompts {
			seedPrompt(sess, p, tags())
		}
	}

	var fragments []string
	for _, ref := range n.Inputs {
		f, err := x.Resolver().Describe(ref)
		if err != nil {
			return x.Fail(ctx, n, err)
		}
		fragments = append(fragments, f...)
	}

	maxTurns := m.svc.maxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	req := llm.Request{
		Backend:   v.Backend,
		Model:     v.Model,
		MaxTokens: v.MaxTokens,
		Timeout:   time.Duration(v.TimeoutSeconds * float64(time.Second)),
	}

	var (
		last     string
		produced []domain.Record
	)
	for number := 1; ; number++ {
		if number > maxTurns {
			return x.Fail(ctx, n, fmt.Errorf("%w: conversation exceeded %d turns", domain.ErrExecution, maxTurns))
		}
		req.Prompt = ComposePrompt(sess.Transcript(m.svc.filter), fragments, v.Prompt)

		var (
			turn  *Turn
			again bool
		)
		start := time.Now()
		err := m.svc.pool.Do(ctx, func(ctx context.Context) error {
			t, err := m.turn(ctx, sess, n, req, tags)
			t.Path, t.Number = path, number
			turn = t
			if err != nil {
				return err
			}
			if cont != nil {
				again = cont(ctx, t)
			}
			return nil
		})

		count := 0
		if turn != nil {
			count = len(turn.Records)
			produced = append(produced, turn.Records...)
		}
		m.svc.onTurn(ctx, n, v.Backend, number, count, time.Since(start), err)
		if err != nil {
			x.Logger().Warn("Model turn failed", "node", n.Name, "turn", number, "err", err)
			return x.Fail(ctx, n, err)
		}
		last = turn.Text
		if !again {
			break
		}
	}

	x.Context().Set(v.ResponseKey(), last)
	if err := persistArtifacts(ctx, x, n, produced); err != nil {
		return x.Fail(ctx, n, err)
	}
	if settle != nil {
		if err := settle(); err != nil {
			return x.Fail(ctx, n, err)
		}
	}
	return x.Complete(ctx, n)
}

// turn streams one response into sess. The returned Turn is never nil.
func (m *modelExecutor) turn(ctx context.Context, sess *session.Session, n *domain.Node, req llm.Request, tags func() map[string]string) (*Turn, error) {
	p := markup.NewParser(sess, domain.SenderAssistant, markup.WithMetadata(tags()))
	var raw strings.Builder
	err := m.svc.streamer.Stream(ctx, req, func(text string) error {
		raw.WriteString(text)
		return p.Feed(text)
	})
	if ferr := p.Finish(); err == nil {
		err = ferr
	}

	t := &Turn{Node: n, Text: raw.String(), session: sess, tags: tags}
	for _, id := range p.Produced() {
		if r, ok := sess.Get(id); ok {
			t.Records = append(t.Records, r)
		}
	}
	return t, err
}

// ComposePrompt joins the visible transcript, the resolved input fragments and the node instruction.
func ComposePrompt(transcript string, fragments []string, instruction string) string {
	var parts []string
	if t := strings.TrimSpace(transcript); t != "" {
		parts = append(parts, t)
	}
	if len(fragments) > 0 {
		parts = append(parts, strings.Join(fragments, "\n"))
	}
	if s := strings.TrimSpace(instruction); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
