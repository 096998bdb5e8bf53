package core

// Input represents one resolved source file.
type Input struct {
	// Path is the absolute, slash-normalized file path.
	Path string

	// Rel is the slash-separated path relative to the task base; processors
	// use it to name their outputs.
	Rel string

	// Content is the raw file content.
	Content []byte
}

// InputSet is the resolved input of one task run.
// Inputs are always sorted lexicographically by Path.
type InputSet struct {
	Inputs []Input
}

// Len returns the number of inputs.
func (s *InputSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Inputs)
}
