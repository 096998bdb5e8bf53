package compose

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"assetweaver/internal/core"
	"assetweaver/internal/dag"
	"assetweaver/internal/watch"
)

// Plan is the printable form of a compiled pipeline.
type Plan struct {
	Pipeline string        `yaml:"pipeline"`
	Graph    string        `yaml:"graph"`
	Tasks    []PlanTask    `yaml:"tasks"`
	Watch    []PlanBinding `yaml:"watch,omitempty"`
}

// PlanTask is one task of a Plan, listed in topological order.
type PlanTask struct {
	core.Task `yaml:",inline"`

	Kind      string   `yaml:"kind"`
	Depth     int      `yaml:"depth"`
	Hash      string   `yaml:"hash"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// PlanBinding is one watch binding of a Plan.
type PlanBinding struct {
	Name     string         `yaml:"name"`
	Patterns []string       `yaml:"patterns"`
	Tasks    []string       `yaml:"tasks"`
	FollowUp watch.FollowUp `yaml:"follow_up"`
}

// NewPlan describes g. Bindings are listed when the pipeline watches.
func NewPlan(name string, g *dag.TaskGraph, bindings []*watch.Binding) *Plan {
	plan := &Plan{Pipeline: name, Graph: g.Hash().String()}
	for _, tn := range g.TopologicalOrder() {
		node, _ := g.Node(tn)
		depth, _ := g.Depth(tn)
		plan.Tasks = append(plan.Tasks, PlanTask{
			Task:      node.Task,
			Kind:      node.Task.Kind(),
			Depth:     depth,
			Hash:      node.DefinitionHash.String(),
			DependsOn: g.Dependencies(tn),
		})
	}
	for _, b := range bindings {
		pb := PlanBinding{Name: b.Name, Patterns: b.Patterns, FollowUp: b.FollowUp}
		for _, t := range b.Tasks {
			pb.Tasks = append(pb.Tasks, t.Name)
		}
		plan.Watch = append(plan.Watch, pb)
	}
	return plan
}

// Plan compiles the named pipeline into a Plan.
func (p *Project) Plan(name string) (*Plan, error) {
	pl, err := p.Pipeline(name)
	if err != nil {
		return nil, err
	}
	g, err := pl.Compile()
	if err != nil {
		return nil, fmt.Errorf("compiling pipeline %q: %w", pl.Name, err)
	}
	var bindings []*watch.Binding
	if _, ok := g.Node("watcher"); ok {
		bindings = p.Catalog.Bindings(p.Catalog.CopyImages)
	}
	return NewPlan(pl.Name, g, bindings), nil
}

// WriteYAML encodes the plan to w.
func (p *Plan) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	return enc.Close()
}
