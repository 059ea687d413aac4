package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Encode renders a graph in the given format.
func Encode(root *domain.Node, format Format) ([]byte, error) {
	m, err := ToMap(root)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case FormatYAML:
		return yaml.Marshal(m)
	}
	return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidGraph, format)
}

// ToMap converts a node and its descendants into the tagged-tree object form.
func ToMap(n *domain.Node) (map[string]any, error) {
	if n.Variant == nil {
		return nil, fmt.Errorf("%w: node %q has no variant", ErrInvalidGraph, n.Name)
	}

	m := make(map[string]any)
	if err := mapstructure.Decode(n.Variant, &m); err != nil {
		return nil, fmt.Errorf("encode %q attributes: %w", n.Name, err)
	}
	m[keyType] = string(n.Kind())
	m[keyName] = n.Name
	if n.Description != "" {
		m[keyDescription] = n.Description
	}
	if n.State != "" && n.State != domain.StateQueued {
		m[keyState] = string(n.State)
	}
	if n.Message != "" {
		m[keyMessage] = n.Message
	}
	if len(n.Inputs) > 0 {
		m[keyInputs] = append([]string{}, n.Inputs...)
	}
	if len(n.Outputs) > 0 {
		m[keyOutputs] = append([]string{}, n.Outputs...)
	}
	if len(n.Children) > 0 {
		children := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			cm, err := ToMap(c)
			if err != nil {
				return nil, err
			}
			children = append(children, cm)
		}
		m[keyChildren] = children
	}
	return m, nil
}
