package loam

// PromptMetadata is the frontmatter of a prompt document. The document body is
// the prompt text.
type PromptMetadata struct {
	ID      string   `json:"id" mapstructure:"id"`
	Tags    []string `json:"tags" mapstructure:"tags"`
	Summary string   `json:"summary" mapstructure:"summary"`

	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty" mapstructure:"active"`

	IncludeInContext bool `json:"include_in_context" mapstructure:"include_in_context"`
	IncludeInDisplay bool `json:"include_in_display" mapstructure:"include_in_display"`
}

func (m PromptMetadata) active() bool {
	return m.Active == nil || *m.Active
}
