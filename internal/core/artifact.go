package core

// Artifact represents a file present in the output tree after a run.
type Artifact struct {
	// Path is the slash-separated path relative to the harvested root.
	Path string

	// Content is the file content.
	Content []byte
}

// ArtifactSet is the harvested content of an output tree.
// Artifacts are maintained in sorted order by Path.
type ArtifactSet struct {
	Artifacts []Artifact
}

// Paths returns the artifact paths in order.
func (s *ArtifactSet) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Artifacts))
	for i, a := range s.Artifacts {
		out[i] = a.Path
	}
	return out
}
