package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/tasktree/pkg/domain"
)

// ListCheckpoints prints the saved checkpoints with their cursor and age.
func ListCheckpoints(ctx context.Context, stack *Stack, out io.Writer) error {
	ids, err := stack.Checkpoints.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No checkpoints.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCURSOR\tDONE\tUPDATED")
	for _, id := range ids {
		cp, err := stack.Checkpoints.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t?\t%v\n", id, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", id, cursorLabel(cp.Cursor), cp.Done, cp.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// InspectCheckpoint prints one checkpoint as indented JSON.
func InspectCheckpoint(ctx context.Context, stack *Stack, id string, out io.Writer) error {
	cp, err := stack.Checkpoints.Load(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(cp)
}

// RemoveCheckpoint deletes one checkpoint.
func RemoveCheckpoint(ctx context.Context, stack *Stack, id string, out io.Writer) error {
	if _, err := stack.Checkpoints.Load(ctx, id); err != nil {
		return err
	}
	if err := stack.Checkpoints.Delete(ctx, id); err != nil {
		return err
	}
	printSystemMessage(out, "Checkpoint %q removed.", id)
	return nil
}

func cursorLabel(cursor []int) string {
	if s := domain.FormatPath(cursor); s != "" {
		return s
	}
	return "root"
}
