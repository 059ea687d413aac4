package domain

import "time"

// RecordKind classifies a session record.
type RecordKind string

const (
	RecordConversational RecordKind = "conversational"
	RecordArtifact       RecordKind = "artifact"
	RecordInstruction    RecordKind = "instruction"
)

// Metadata keys used on records.
const (
	MetaFilename   = "filename"
	MetaType       = "type"
	MetaPhase      = "phase"
	MetaIncomplete = "incomplete"
	MetaPrompt     = "prompt"
)

// Sender labels used on records produced by the engine.
const (
	SenderUser        = "user"
	SenderAssistant   = "assistant"
	SenderSystem      = "system"
	SenderTaskManager = "task_manager"
)

// ArtifactType names the markup tag that produced an artifact record.
type ArtifactType string

const (
	ArtifactFile      ArtifactType = "file"
	ArtifactDiff      ArtifactType = "diff"
	ArtifactTaskGraph ArtifactType = "task_graph"
)

// Record is one entry of a node session.
// It is mutated in place while its turn streams and never after it is sealed.
type Record struct {
	ID        string            `json:"id"`
	Time      time.Time         `json:"time"`
	Sender    string            `json:"sender"`
	Content   string            `json:"content"`
	Kind      RecordKind        `json:"kind"`
	InContext bool              `json:"include_in_context"`
	InDisplay bool              `json:"include_in_display"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Sealed    bool              `json:"sealed"`
}

// Artifact returns the artifact type of the record, or "" for non-artifacts.
func (r *Record) Artifact() ArtifactType {
	if r.Kind != RecordArtifact {
		return ""
	}
	return ArtifactType(r.Metadata[MetaType])
}

// Filename returns the artifact filename, if any.
func (r *Record) Filename() string {
	return r.Metadata[MetaFilename]
}

// Clone returns a copy that does not share metadata.
func (r Record) Clone() Record {
	if r.Metadata != nil {
		m := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			m[k] = v
		}
		r.Metadata = m
	}
	return r
}
