package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/tasktree/pkg/domain"
	"github.com/aretw0/tasktree/pkg/registry"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrInvalidGraph is wrapped by every structural decode failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Format selects the textual rendition of the tagged tree.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Node-level keys. Every other key of a node object belongs to its variant.
const (
	keyType        = "type"
	keyName        = "name"
	keyDescription = "description"
	keyState       = "state"
	keyMessage     = "message"
	keyInputs      = "inputs"
	keyOutputs     = "outputs"
	keyChildren    = "children"
)

// DecodeError locates a decode failure within the tree.
type DecodeError struct {
	// Path is the dotted child-index path of the offending node ("" for the root).
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode root: %v", e.Err)
	}
	return fmt.Sprintf("decode node %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Parser is responsible for converting the persisted tagged tree into nodes.
type Parser struct {
	registry *registry.Registry
}

// NewParser creates a parser over the given registry (the default registry if nil).
func NewParser(r *registry.Registry) *Parser {
	if r == nil {
		r = registry.Default()
	}
	return &Parser{registry: r}
}

// Parse decodes a graph, sniffing JSON versus YAML from the first non-space byte.
func (p *Parser) Parse(data []byte) (*domain.Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return p.ParseFormat(data, FormatJSON)
	}
	return p.ParseFormat(data, FormatYAML)
}

// ParseFormat decodes a graph in the given format.
func (p *Parser) ParseFormat(data []byte, format Format) (*domain.Node, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrInvalidGraph, err)}
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrInvalidGraph, err)}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidGraph, format)
	}
	if raw == nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: empty document", ErrInvalidGraph)}
	}
	return p.ParseMap(raw)
}

// ParseMap decodes an already unmarshalled root node object.
func (p *Parser) ParseMap(raw map[string]any) (*domain.Node, error) {
	root, err := p.decodeNode(raw, "")
	if err != nil {
		return nil, err
	}
	if len(root.Children) > 0 && root.Kind() != domain.KindContainer {
		return nil, &DecodeError{Err: fmt.Errorf("%w: root of a multi-node graph must be a container, got %q", ErrInvalidGraph, root.Kind())}
	}
	return root, nil
}

func (p *Parser) decodeNode(raw map[string]any, path string) (*domain.Node, error) {
	fail := func(err error) error { return &DecodeError{Path: path, Err: err} }

	kind, ok := raw[keyType].(string)
	if !ok || kind == "" {
		return nil, fail(fmt.Errorf("%w: missing %q discriminator", ErrInvalidGraph, keyType))
	}
	variant, err := p.registry.New(domain.Kind(kind))
	if err != nil {
		return nil, fail(err)
	}

	node := &domain.Node{Variant: variant}
	var header struct {
		Name        string   `mapstructure:"name"`
		Description string   `mapstructure:"description"`
		State       string   `mapstructure:"state"`
		Message     string   `mapstructure:"message"`
		Inputs      []string `mapstructure:"inputs"`
		Outputs     []string `mapstructure:"outputs"`
	}
	attrs := make(map[string]any)
	head := make(map[string]any)
	var children []any
	for k, v := range raw {
		switch k {
		case keyType:
		case keyChildren:
			list, ok := v.([]any)
			if !ok && v != nil {
				return nil, fail(fmt.Errorf("%w: %q must be an array", ErrInvalidGraph, keyChildren))
			}
			children = list
		case keyName, keyDescription, keyState, keyMessage, keyInputs, keyOutputs:
			head[k] = v
		default:
			attrs[k] = v
		}
	}
	if err := decode(head, &header); err != nil {
		return nil, fail(err)
	}
	if err := decode(attrs, variant); err != nil {
		return nil, fail(err)
	}

	node.Name = header.Name
	node.Description = header.Description
	node.Message = header.Message
	node.Inputs = header.Inputs
	node.Outputs = header.Outputs
	if node.State, err = domain.ParseState(header.State); err != nil {
		return nil, fail(err)
	}

	if len(children) > 0 && !node.AllowsChildren() {
		return nil, fail(fmt.Errorf("%w: %q nodes cannot have children", ErrInvalidGraph, kind))
	}
	for i, c := range children {
		obj, ok := c.(map[string]any)
		if !ok {
			return nil, fail(fmt.Errorf("%w: child %d is not an object", ErrInvalidGraph, i))
		}
		child, err := p.decodeNode(obj, childPath(path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	return nil
}

func childPath(parent string, i int) string {
	if parent == "" {
		return strconv.Itoa(i)
	}
	return parent + "." + strconv.Itoa(i)
}
