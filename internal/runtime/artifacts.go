package runtime

import (
	"context"
	"fmt"
	"path"

	"github.com/aretw0/tasktree/internal/fsutil"
	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/markup"
)

// PatchDir is where repaired diff artifacts are written, relative to the project root.
const PatchDir = ".tasktree/patches"

// persistArtifacts writes the file and diff artifacts of a finished conversation.
// Written files are registered with the project and published as asset:// outputs of n.
func persistArtifacts(ctx context.Context, x *Exec, n *domain.Node, recs []domain.Record) error {
	for _, r := range recs {
		if r.Kind != domain.RecordArtifact || r.Metadata[domain.MetaIncomplete] == "true" {
			continue
		}
		kind := r.Artifact()
		if kind != domain.ArtifactFile && kind != domain.ArtifactDiff {
			continue
		}

		project := x.Project()
		if project == nil {
			return fmt.Errorf("%w: %s artifact %q needs a project", domain.ErrState, kind, r.Filename())
		}

		switch kind {
		case domain.ArtifactFile:
			if err := writeProjectFile(project.Root(), r.Filename(), r.Content); err != nil {
				return err
			}
			if err := project.RegisterFile(ctx, r.Filename()); err != nil {
				return fmt.Errorf("register %s: %w", r.Filename(), err)
			}
			n.AddOutput(AssetPrefix + r.Filename())
			x.Logger().Debug("Artifact written", "node", n.Name, "file", r.Filename())

		case domain.ArtifactDiff:
			rel := path.Join(PatchDir, r.Filename()+".diff")
			if err := writeProjectFile(project.Root(), rel, markup.RepairHunks(r.Content)); err != nil {
				return err
			}
			x.Logger().Debug("Patch written", "node", n.Name, "file", rel)
		}
	}
	return nil
}

func writeProjectFile(root, rel, content string) error {
	dest, err := ProjectPath(root, rel)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(dest, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
