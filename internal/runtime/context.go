package runtime

import (
	"fmt"
	"sort"

	"github.com/aretw0/tasktree/pkg/domain"
)

// binding is one environment entry. The owner is the node that was active when
// the name was first set.
type binding struct {
	value any
	owner *domain.Node
}

// AdvanceFunc observes cursor moves. Done is set when traversal is exhausted.
type AdvanceFunc func(cursor []int, node *domain.Node, done bool)

// Context owns the depth-first cursor and the scoped variable environment of one traversal.
// It is not safe for concurrent use; traversal executes one node at a time.
type Context struct {
	root      *domain.Node
	cursor    []int
	vars      map[string]*binding
	done      bool
	observers []AdvanceFunc
}

// NewContext creates a context positioned on the root node.
func NewContext(root *domain.Node) *Context {
	return &Context{
		root: root,
		vars: make(map[string]*binding),
	}
}

// Root returns the graph root.
func (c *Context) Root() *domain.Node { return c.root }

// Cursor returns a copy of the child-index path from the root to the active node.
func (c *Context) Cursor() []int {
	return append([]int{}, c.cursor...)
}

// Done reports whether every node has been visited.
func (c *Context) Done() bool { return c.done }

// Observe registers a callback invoked after every cursor move.
func (c *Context) Observe(fn AdvanceFunc) {
	c.observers = append(c.observers, fn)
}

// Current resolves the cursor to the active node.
func (c *Context) Current() *domain.Node {
	n, err := c.NodeAt(c.cursor)
	if err != nil {
		// The cursor only ever holds indices that were valid when pushed.
		panic(err)
	}
	return n
}

// NodeAt resolves an arbitrary path from the root.
func (c *Context) NodeAt(path []int) (*domain.Node, error) {
	n := c.root
	for depth, idx := range path {
		if idx < 0 || idx >= len(n.Children) {
			return nil, fmt.Errorf("%w: path %q leaves the graph at depth %d", domain.ErrState, domain.FormatPath(path), depth)
		}
		n = n.Children[idx]
	}
	return n, nil
}

// PathOf returns the path of a node within the graph.
func (c *Context) PathOf(target *domain.Node) ([]int, bool) {
	var path []int
	var find func(n *domain.Node) bool
	find = func(n *domain.Node) bool {
		if n == target {
			return true
		}
		for i, child := range n.Children {
			path = append(path, i)
			if find(child) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !find(c.root) {
		return nil, false
	}
	return append([]int{}, path...), true
}

// Advance moves the cursor one step in depth-first pre-order.
// It returns false once the whole graph has been visited.
func (c *Context) Advance() bool {
	if c.done {
		return false
	}

	if cur := c.Current(); len(cur.Children) > 0 {
		c.cursor = append(c.cursor, 0)
		c.ClearNodeVariables(cur.Children[0])
		c.notify()
		return true
	}

	for len(c.cursor) > 0 {
		last := len(c.cursor) - 1
		idx := c.cursor[last]
		c.cursor = c.cursor[:last]
		parent := c.Current()

		if idx+1 < len(parent.Children) {
			c.cursor = append(c.cursor, idx+1)
			c.ClearNodeVariables(parent.Children[idx+1])
			c.notify()
			return true
		}

		// Every child of parent is finished: backtracking past the level
		// releases everything its subtrees created.
		for _, child := range parent.Children {
			child.Walk(func(n *domain.Node) bool {
				c.ClearNodeVariables(n)
				return true
			})
		}
	}

	c.ClearNodeVariables(c.root)
	c.done = true
	c.notify()
	return false
}

// Reset moves the cursor back to the root and empties the environment.
func (c *Context) Reset() {
	c.cursor = nil
	c.done = false
	c.vars = make(map[string]*binding)
	c.root.Walk(func(n *domain.Node) bool {
		n.Owned = nil
		return true
	})
	c.notify()
}

func (c *Context) notify() {
	if len(c.observers) == 0 {
		return
	}
	cursor := c.Cursor()
	node := c.Current()
	for _, fn := range c.observers {
		fn(cursor, node, c.done)
	}
}

// Set stores a value. The active node becomes the owner the first time a name is set.
func (c *Context) Set(name string, value any) {
	if b, ok := c.vars[name]; ok {
		b.value = value
		return
	}
	owner := c.Current()
	owner.Owned = append(owner.Owned, name)
	c.vars[name] = &binding{value: value, owner: owner}
}

// Get returns a variable or an error wrapping domain.ErrNotFound.
func (c *Context) Get(name string) (any, error) {
	b, ok := c.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %q", domain.ErrNotFound, name)
	}
	return b.value, nil
}

// ClearNodeVariables removes every variable the node owns. It is idempotent.
func (c *Context) ClearNodeVariables(n *domain.Node) {
	for _, name := range n.Owned {
		if b, ok := c.vars[name]; ok && b.owner == n {
			delete(c.vars, name)
		}
	}
	n.Owned = nil
}

// Variables snapshots the environment, sorted by name.
func (c *Context) Variables() []domain.Binding {
	out := make([]domain.Binding, 0, len(c.vars))
	for name, b := range c.vars {
		owner, _ := c.PathOf(b.owner)
		out = append(out, domain.Binding{Name: name, Value: b.value, Owner: owner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restore rebuilds the cursor and the environment from a checkpoint.
func (c *Context) Restore(cursor []int, done bool, vars []domain.Binding) error {
	if _, err := c.NodeAt(cursor); err != nil {
		return fmt.Errorf("restore cursor: %w", err)
	}
	fresh := make(map[string]*binding, len(vars))
	c.root.Walk(func(n *domain.Node) bool {
		n.Owned = nil
		return true
	})
	for _, v := range vars {
		owner, err := c.NodeAt(v.Owner)
		if err != nil {
			return fmt.Errorf("restore variable %q: %w", v.Name, err)
		}
		owner.Owned = append(owner.Owned, v.Name)
		fresh[v.Name] = &binding{value: v.Value, owner: owner}
	}
	c.cursor = append([]int{}, cursor...)
	c.done = done
	c.vars = fresh
	return nil
}
