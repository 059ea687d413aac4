package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/script"
)

func executeContainer(ctx context.Context, x *Exec, n *domain.Node) error {
	if err := x.Begin(ctx, n); err != nil {
		return err
	}
	return x.Complete(ctx, n)
}

type scriptExecutor struct {
	interp *script.Interpreter
}

func (s *scriptExecutor) Execute(ctx context.Context, x *Exec, n *domain.Node) error {
	v, ok := n.Variant.(*domain.Script)
	if !ok {
		return fmt.Errorf("%w: node %q is not a script", domain.ErrState, n.Name)
	}
	if err := x.Begin(ctx, n); err != nil {
		return err
	}

	inputs, err := x.ResolveInputs(n)
	if err != nil {
		return x.Fail(ctx, n, err)
	}
	c := x.Context()
	env := script.NewEnv(
		func(ref string) (any, error) {
			if v, ok := inputs[ref]; ok {
				return v, nil
			}
			return x.Resolver().Resolve(ref)
		},
		c.Set,
	)

	out, err := s.interp.Run(ctx, v.Source, env)
	v.Output = out
	if err != nil {
		return x.Fail(ctx, n, err)
	}
	return x.Complete(ctx, n)
}

func executeAssist(ctx context.Context, x *Exec, n *domain.Node) error {
	v, ok := n.Variant.(*domain.Assist)
	if !ok {
		return fmt.Errorf("%w: node %q is not an assist node", domain.ErrState, n.Name)
	}
	if err := x.Begin(ctx, n); err != nil {
		return err
	}
	if !v.Resolved {
		err := domain.ErrAssistanceRequired
		if v.Instructions != "" {
			err = fmt.Errorf("%w: %s", domain.ErrAssistanceRequired, v.Instructions)
		}
		return x.Fail(ctx, n, err)
	}
	return x.Complete(ctx, n)
}
