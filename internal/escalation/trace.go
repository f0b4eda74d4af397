package escalation

// TraceStep points at one upstream artifact location a resolution's
// reasoning passed through, so a reviewer can follow an item backward
// from "resolved_not_found" to the page or record where it disappeared.
type TraceStep struct {
	Stage        string `json:"stage"`
	ArtifactPath string `json:"artifact_path"`
	RecordID     string `json:"record_id,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
}

// Trace is the ordered chain of TraceSteps a module attaches to a
// resolution record, earliest upstream step first.
type Trace struct {
	Steps []TraceStep `json:"steps,omitempty"`
}

// Builder accumulates TraceSteps as a module walks an item back
// through the stages that produced it.
type Builder struct {
	steps []TraceStep
}

// NewBuilder returns an empty trace builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Step appends one upstream location to the trace being built.
func (b *Builder) Step(stage, artifactPath, recordID, snippet string) *Builder {
	b.steps = append(b.steps, TraceStep{
		Stage:        stage,
		ArtifactPath: artifactPath,
		RecordID:     recordID,
		Snippet:      snippet,
	})
	return b
}

// Build finalizes the trace.
func (b *Builder) Build() Trace {
	return Trace{Steps: b.steps}
}
