package domain

import (
	"encoding/json"
	"time"
)

// Binding is one persisted environment entry together with its owner's cursor path.
type Binding struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Owner []int  `json:"owner"`
}

// Checkpoint is a resumable snapshot of a traversal.
type Checkpoint struct {
	ID string `json:"id"`

	// Graph is the tagged-tree encoding of the graph, including node states.
	Graph json.RawMessage `json:"graph"`

	Cursor    []int     `json:"cursor"`
	Done      bool      `json:"done"`
	Variables []Binding `json:"variables,omitempty"`

	// Transcripts maps a node path to the records of its session.
	Transcripts map[string][]Record `json:"transcripts,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Prompt is an instruction template from the prompt library.
type Prompt struct {
	ID      string   `json:"id"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary,omitempty"`
	Content string   `json:"content"`

	// Context and Display control the visibility of the seeded record.
	Context bool `json:"include_in_context"`
	Display bool `json:"include_in_display"`
}

// Matches reports whether every tag of the prompt is among the search tags.
func (p Prompt) Matches(search []string) bool {
	if len(p.Tags) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(search))
	for _, t := range search {
		set[t] = struct{}{}
	}
	for _, t := range p.Tags {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the checkpoint. Variable values are shared.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Graph = append(json.RawMessage(nil), c.Graph...)
	out.Cursor = append([]int{}, c.Cursor...)
	if c.Variables != nil {
		out.Variables = make([]Binding, len(c.Variables))
		for i, b := range c.Variables {
			b.Owner = append([]int{}, b.Owner...)
			out.Variables[i] = b
		}
	}
	if c.Transcripts != nil {
		out.Transcripts = make(map[string][]Record, len(c.Transcripts))
		for k, recs := range c.Transcripts {
			cp := make([]Record, len(recs))
			for i, r := range recs {
				cp[i] = r.Clone()
			}
			out.Transcripts[k] = cp
		}
	}
	return &out
}
