package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/tasktree/pkg/domain"
)

// RetryMessage is sent to the model, hidden from display, after an unusable task graph.
const RetryMessage = "something went wrong please try again"

type disaggregatorExecutor struct {
	model *modelExecutor
}

func (d *disaggregatorExecutor) Execute(ctx context.Context, x *Exec, n *domain.Node) error {
	v, ok := n.Variant.(*domain.Disaggregator)
	if !ok {
		return fmt.Errorf("%w: node %q is not a disaggregator", domain.ErrState, n.Name)
	}

	var (
		graph    *domain.Node
		lastErr  error
		attempts int
	)
	next := d.model.svc.continueFn
	cont := func(ctx context.Context, t *Turn) bool {
		g, err := d.decode(t)
		if err == nil {
			graph = g
			return false
		}
		lastErr = err
		if next != nil && next(ctx, t) {
			return true
		}
		if attempts >= v.MaxRetries {
			return false
		}
		attempts++
		x.Logger().Info("Task graph rejected, retrying", "node", n.Name, "attempt", attempts, "err", err)
		t.Notify(RetryMessage, false)
		return true
	}
	settle := func() error {
		if graph == nil {
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: no task graph produced", domain.ErrNotFound)
			}
			return lastErr
		}
		x.Splice(n, graph)
		return nil
	}
	return d.model.converse(ctx, x, n, &v.Model, cont, settle)
}

// decode returns the last complete task_graph artifact of the turn.
func (d *disaggregatorExecutor) decode(t *Turn) (*domain.Node, error) {
	for i := len(t.Records) - 1; i >= 0; i-- {
		r := t.Records[i]
		if r.Kind != domain.RecordArtifact || r.Artifact() != domain.ArtifactTaskGraph {
			continue
		}
		if r.Metadata[domain.MetaIncomplete] == "true" {
			return nil, fmt.Errorf("%w: task graph artifact is incomplete", domain.ErrNotFound)
		}
		if d.model.svc.compiler == nil {
			return nil, errors.New("no graph compiler configured")
		}
		return d.model.svc.compiler.Parse([]byte(r.Content))
	}
	return nil, fmt.Errorf("%w: turn has no task_graph artifact", domain.ErrNotFound)
}
