package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the discriminator naming a node variant in the persisted format.
type Kind string

const (
	// KindContainer groups children and completes immediately.
	KindContainer Kind = "container"
	// KindScript runs an embedded routine in a restricted interpreter.
	KindScript Kind = "script"
	// KindModel drives a streamed language-model conversation.
	KindModel Kind = "model"
	// KindAssist halts until an operator resolves it.
	KindAssist Kind = "assist"
	// KindDisaggregator is a model node that splices a generated subgraph as its children.
	KindDisaggregator Kind = "disaggregator"
)

// DefaultResponseVariable receives the raw text of the last model turn.
const DefaultResponseVariable = "most_recent_llm_response"

// Variant holds the behavior-specific attributes of a node.
type Variant interface {
	Kind() Kind
}

// Parent is implemented by variants whose nodes may carry children.
type Parent interface {
	AllowsChildren() bool
}

// Node represents a unit of work in the task graph.
type Node struct {
	Name        string
	Description string
	State       State

	// Inputs are symbolic references resolved before execution.
	Inputs []string
	// Outputs name the values this node publishes to later nodes.
	Outputs []string

	Children []*Node
	Variant  Variant

	// Message retains the last failure for display.
	Message string

	// Owned lists the environment variables created while this node was active.
	Owned []string
}

// Kind returns the discriminator of the node's variant.
func (n *Node) Kind() Kind {
	if n.Variant == nil {
		return ""
	}
	return n.Variant.Kind()
}

// AllowsChildren reports whether the node's variant may hold children.
func (n *Node) AllowsChildren() bool {
	p, ok := n.Variant.(Parent)
	return ok && p.AllowsChildren()
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// AddOutput appends an output name once.
func (n *Node) AddOutput(name string) {
	for _, o := range n.Outputs {
		if o == name {
			return
		}
	}
	n.Outputs = append(n.Outputs, name)
}

// Walk visits the node and its descendants in depth-first pre-order.
// Returning false from fn prunes the subtree below the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Container only groups its children.
type Container struct{}

func (Container) Kind() Kind           { return KindContainer }
func (Container) AllowsChildren() bool { return true }

// Script is a routine evaluated by the restricted interpreter.
// The source is either the body of `func Run(env *tasktree.Env) error` or a
// complete "package main" program that imports "tasktree" and defines it.
type Script struct {
	Source string `mapstructure:"source"`

	// Output holds the text printed during the last run.
	Output string `mapstructure:"output,omitempty"`
}

func (*Script) Kind() Kind { return KindScript }

// Model configures a streamed conversation with a language-model backend.
type Model struct {
	// Backend selects the configured endpoint (and therefore the wire dialect).
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
	Prompt  string `mapstructure:"prompt"`

	// PromptTags select instruction prompts from the prompt library.
	PromptTags []string `mapstructure:"prompt_tags,omitempty"`

	// ResponseVariable receives the raw text of the last turn.
	ResponseVariable string `mapstructure:"response_variable,omitempty"`

	MaxTokens      int     `mapstructure:"max_tokens,omitempty"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds,omitempty"`
}

func (*Model) Kind() Kind { return KindModel }

// ResponseKey returns the variable name receiving the last response.
func (m *Model) ResponseKey() string {
	if m.ResponseVariable == "" {
		return DefaultResponseVariable
	}
	return m.ResponseVariable
}

// Assist marks work that only an operator can complete.
type Assist struct {
	Instructions string `mapstructure:"instructions,omitempty"`
	Resolved     bool   `mapstructure:"resolved,omitempty"`
}

func (*Assist) Kind() Kind { return KindAssist }

// Disaggregator asks the model for a task_graph artifact and splices it in as children.
type Disaggregator struct {
	Model `mapstructure:",squash"`

	// MaxRetries bounds the automatic re-prompts after an unusable graph.
	MaxRetries int `mapstructure:"max_retries,omitempty"`
}

func (*Disaggregator) Kind() Kind           { return KindDisaggregator }
func (*Disaggregator) AllowsChildren() bool { return true }

// FormatPath renders a cursor path as dotted child indices. The root is "".
func FormatPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// ParsePath parses the result of FormatPath. "root" is accepted for the empty path.
func ParsePath(s string) ([]int, error) {
	if s == "" || s == "root" {
		return []int{}, nil
	}
	parts := strings.Split(s, ".")
	path := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid node path %q", ErrState, s)
		}
		path[i] = n
	}
	return path, nil
}
