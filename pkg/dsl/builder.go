package dsl

import (
	"fmt"

	"github.com/aretw0/tasktree/internal/validator"
	"github.com/aretw0/tasktree/pkg/adapters/memory"
	"github.com/aretw0/tasktree/pkg/domain"
)

// Builder assembles the children of one container node.
type Builder struct {
	node *domain.Node
}

// New creates a builder for a root container.
func New(name string) *Builder {
	return &Builder{node: &domain.Node{Name: name, Variant: &domain.Container{}}}
}

// Describe sets the container description.
func (b *Builder) Describe(text string) *Builder {
	b.node.Description = text
	return b
}

func (b *Builder) add(n *domain.Node) *NodeBuilder {
	b.node.Children = append(b.node.Children, n)
	return &NodeBuilder{node: n}
}

// Group appends a nested container and returns its builder.
func (b *Builder) Group(name string) *Builder {
	n := &domain.Node{Name: name, Variant: &domain.Container{}}
	b.node.Children = append(b.node.Children, n)
	return &Builder{node: n}
}

// Script appends a script node.
func (b *Builder) Script(name, source string) *NodeBuilder {
	return b.add(&domain.Node{Name: name, Variant: &domain.Script{Source: source}})
}

// Model appends a model node with the given instruction.
func (b *Builder) Model(name, prompt string) *NodeBuilder {
	return b.add(&domain.Node{Name: name, Variant: &domain.Model{Prompt: prompt}})
}

// Assist appends a node that waits for an operator.
func (b *Builder) Assist(name, instructions string) *NodeBuilder {
	return b.add(&domain.Node{Name: name, Variant: &domain.Assist{Instructions: instructions}})
}

// Disaggregate appends a node whose children are generated by the model.
func (b *Builder) Disaggregate(name, prompt string) *NodeBuilder {
	return b.add(&domain.Node{Name: name, Variant: &domain.Disaggregator{Model: domain.Model{Prompt: prompt}}})
}

// Build validates the tree and returns its root.
func (b *Builder) Build() (*domain.Node, error) {
	if err := validator.ValidateGraph(b.node); err != nil {
		return nil, fmt.Errorf("invalid graph %s: %w", b.node.Name, err)
	}
	return b.node, nil
}

// Loader builds the tree and encodes it behind a ports.GraphLoader.
func (b *Builder) Loader() (*memory.Loader, error) {
	root, err := b.Build()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewFromNode(root)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
