package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/ports"
)

// Reference prefixes understood by the resolver.
const (
	AssetPrefix      = "asset://"
	NodeOutputPrefix = "node_output://"
)

// ReferenceError reports a reference that could not be resolved.
type ReferenceError struct {
	Ref string
	Err error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Ref, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// Resolver resolves symbolic input references against a context and a project.
// It never mutates the context.
type Resolver struct {
	ctx     *Context
	project ports.Project
}

// NewResolver creates a resolver. The project may be nil when no asset references are used.
func NewResolver(ctx *Context, project ports.Project) *Resolver {
	return &Resolver{ctx: ctx, project: project}
}

// Resolve returns the value behind a reference.
//
//   - a bare name is an environment variable
//   - asset://<rel> is the text of a file under the project root
//   - node_output://<path> is a map of the referenced node's outputs to their values;
//     see SplitNodePath for the path rules
func (r *Resolver) Resolve(ref string) (any, error) {
	switch {
	case strings.HasPrefix(ref, AssetPrefix):
		return r.readAsset(ref)
	case strings.HasPrefix(ref, NodeOutputPrefix):
		target, err := r.lookupNode(ref)
		if err != nil {
			return nil, err
		}
		values := make(map[string]any, len(target.Outputs))
		for _, out := range target.Outputs {
			v, err := r.Resolve(out)
			if err != nil {
				return nil, &ReferenceError{Ref: ref, Err: err}
			}
			values[out] = v
		}
		return values, nil
	}
	v, err := r.ctx.Get(ref)
	if err != nil {
		return nil, &ReferenceError{Ref: ref, Err: err}
	}
	return v, nil
}

// Describe renders a reference as a tagged prompt fragment.
func (r *Resolver) Describe(ref string) ([]string, error) {
	switch {
	case strings.HasPrefix(ref, AssetPrefix):
		text, err := r.readAsset(ref)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("<project_file %s>%s</project_file>", ref, text)}, nil
	case strings.HasPrefix(ref, NodeOutputPrefix):
		target, err := r.lookupNode(ref)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(target.Outputs))
		for _, name := range target.Outputs {
			v, err := r.Resolve(name)
			if err != nil {
				return nil, &ReferenceError{Ref: ref, Err: err}
			}
			out = append(out, fmt.Sprintf("<node_output node=%s output=%s>%s</node_output>", ref, name, Stringify(v)))
		}
		return out, nil
	}
	v, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("<input %s>%s</input>", ref, Stringify(v))}, nil
}

func (r *Resolver) readAsset(ref string) (string, error) {
	if r.project == nil {
		return "", &ReferenceError{Ref: ref, Err: fmt.Errorf("%w: no project attached", domain.ErrState)}
	}
	path, err := ProjectPath(r.project.Root(), strings.TrimPrefix(ref, AssetPrefix))
	if err != nil {
		return "", &ReferenceError{Ref: ref, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: file %s", domain.ErrNotFound, path)
		}
		return "", &ReferenceError{Ref: ref, Err: err}
	}
	return string(data), nil
}

// PathError reports a node_output path that breaks the reference grammar.
type PathError struct {
	Msg string
}

func (e *PathError) Error() string { return e.Msg }

func (e *PathError) Unwrap() error { return domain.ErrState }

// SplitNodePath parses a node_output reference read by the node at cursor. It
// returns the path of the node the names descend from, and those names.
//
// A leading "/" starts from the root. Otherwise the path is relative: each
// leading ".." pops one level off the reader, and a path without any starts
// at the reader's parent, so "x" and "../x" both name a sibling.
func SplitNodePath(ref string, cursor []int) ([]int, []string, error) {
	rest := strings.TrimPrefix(ref, NodeOutputPrefix)
	base := slices.Clone(cursor)
	if strings.HasPrefix(rest, "/") {
		base = []int{}
	}

	pops := 0
	var names []string
	for _, seg := range strings.Split(rest, "/") {
		switch {
		case seg == "" || seg == ".":
		case seg == "..":
			if len(names) > 0 {
				return nil, nil, &PathError{Msg: `".." may only lead the path`}
			}
			if len(base) == 0 {
				return nil, nil, &PathError{Msg: "path pops past the graph root"}
			}
			base = base[:len(base)-1]
			pops++
		default:
			names = append(names, seg)
		}
	}
	if pops == 0 && !strings.HasPrefix(rest, "/") && len(base) > 0 {
		base = base[:len(base)-1]
	}
	return base, names, nil
}

// lookupNode resolves a node_output reference against a copy of the cursor.
func (r *Resolver) lookupNode(ref string) (*domain.Node, error) {
	fail := func(err error) error { return &ReferenceError{Ref: ref, Err: err} }

	base, names, err := SplitNodePath(ref, r.ctx.Cursor())
	if err != nil {
		return nil, fail(err)
	}
	node, err := r.ctx.NodeAt(base)
	if err != nil {
		return nil, fail(err)
	}
	for _, name := range names {
		child, ok := node.Child(name)
		if !ok {
			return nil, fail(fmt.Errorf("%w: no child %q under %q", domain.ErrNotFound, name, node.Name))
		}
		node = child
	}
	if node.State != domain.StateComplete {
		return nil, fail(fmt.Errorf("%w: node %q has not completed (state %s)", domain.ErrState, node.Name, node.State))
	}
	return node, nil
}

// ProjectPath joins a relative path onto the project root, refusing paths that escape it.
func ProjectPath(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: path %q escapes the project root", domain.ErrState, rel)
	}
	return filepath.Join(root, clean), nil
}

// Stringify renders a resolved value for prompts and scripts.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}
