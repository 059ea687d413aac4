package dsl

import "github.com/aretw0/tasktree/pkg/domain"

// NodeBuilder configures one leaf node. Setters that do not apply to the
// node's kind are ignored.
type NodeBuilder struct {
	node *domain.Node
}

// Describe sets the node description.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.node.Description = text
	return n
}

// Inputs appends symbolic references resolved before execution.
func (n *NodeBuilder) Inputs(refs ...string) *NodeBuilder {
	n.node.Inputs = append(n.node.Inputs, refs...)
	return n
}

// Outputs appends the variables this node publishes.
func (n *NodeBuilder) Outputs(names ...string) *NodeBuilder {
	for _, name := range names {
		n.node.AddOutput(name)
	}
	return n
}

func (n *NodeBuilder) model() *domain.Model {
	switch v := n.node.Variant.(type) {
	case *domain.Model:
		return v
	case *domain.Disaggregator:
		return &v.Model
	}
	return nil
}

// Backend selects the configured endpoint of a model or disaggregator node.
func (n *NodeBuilder) Backend(name string) *NodeBuilder {
	if m := n.model(); m != nil {
		m.Backend = name
	}
	return n
}

// UseModel sets the model identifier sent to the backend.
func (n *NodeBuilder) UseModel(id string) *NodeBuilder {
	if m := n.model(); m != nil {
		m.Model = id
	}
	return n
}

// Tags selects instruction prompts from the prompt library.
func (n *NodeBuilder) Tags(tags ...string) *NodeBuilder {
	if m := n.model(); m != nil {
		m.PromptTags = append(m.PromptTags, tags...)
	}
	return n
}

// SaveTo names the variable receiving the last response.
func (n *NodeBuilder) SaveTo(variable string) *NodeBuilder {
	if m := n.model(); m != nil {
		m.ResponseVariable = variable
	}
	return n
}

// Limits sets the token budget and the per-turn timeout in seconds.
func (n *NodeBuilder) Limits(maxTokens int, timeoutSeconds float64) *NodeBuilder {
	if m := n.model(); m != nil {
		m.MaxTokens = maxTokens
		m.TimeoutSeconds = timeoutSeconds
	}
	return n
}

// Retries bounds the re-prompts of a disaggregator after an unusable graph.
func (n *NodeBuilder) Retries(max int) *NodeBuilder {
	if d, ok := n.node.Variant.(*domain.Disaggregator); ok {
		d.MaxRetries = max
	}
	return n
}

// Node returns the underlying node.
func (n *NodeBuilder) Node() *domain.Node {
	return n.node
}
