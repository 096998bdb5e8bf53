package dag

import "assetweaver/internal/core"

// GraphHash identifies a TaskGraph by task definitions and edges only,
// independent of the order they were supplied in.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// TaskDefHash identifies a single task definition.
type TaskDefHash string

func (h TaskDefHash) String() string { return string(h) }

// Edge From -> To: To runs only after From completed.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// TaskNode is a task placed in a graph. Nodes are never mutated after
// NewTaskGraph returns.
type TaskNode struct {
	Name           string
	Task           core.Task
	DefinitionHash TaskDefHash
	canonicalIndex int
}

// CanonicalIndex is the node's position in the graph's sorted node list.
func (n *TaskNode) CanonicalIndex() int { return n.canonicalIndex }
