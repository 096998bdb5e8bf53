// Package compose declares the build pipelines as immutable Series and
// Parallel step trees and compiles them into validated task graphs.
package compose

import (
	"assetweaver/internal/core"
	"assetweaver/internal/dag"
)

// Step is a node of a pipeline description: a task, or a Series or Parallel
// group of steps.
type Step interface {
	compile(c *compiler) (sources, sinks []string)
}

type taskStep struct{ task core.Task }

type seriesStep struct{ steps []Step }

type parallelStep struct{ steps []Step }

// Task wraps one task as a step.
func Task(t core.Task) Step { return taskStep{task: t} }

// Series runs steps one after another: every task of step i completes
// before any task of step i+1 starts.
func Series(steps ...Step) Step {
	return seriesStep{steps: append([]Step(nil), steps...)}
}

// Parallel runs steps with no ordering between them.
func Parallel(steps ...Step) Step {
	return parallelStep{steps: append([]Step(nil), steps...)}
}

// Pipeline is a named, immutable step tree.
type Pipeline struct {
	Name string
	Root Step

	// Isolate logs failures of tasks marked Isolated instead of failing
	// the run.
	Isolate bool
}

// Compile turns the pipeline into a task graph. Series boundaries become
// edges from every sink of one step to every source of the next.
func (p Pipeline) Compile() (*dag.TaskGraph, error) {
	c := &compiler{seen: make(map[dag.Edge]struct{})}
	if p.Root != nil {
		p.Root.compile(c)
	}
	return dag.NewTaskGraph(c.tasks, c.edges)
}

type compiler struct {
	tasks []core.Task
	edges []dag.Edge
	seen  map[dag.Edge]struct{}
}

func (c *compiler) link(from, to []string) {
	for _, f := range from {
		for _, t := range to {
			e := dag.Edge{From: f, To: t}
			if _, ok := c.seen[e]; ok {
				continue
			}
			c.seen[e] = struct{}{}
			c.edges = append(c.edges, e)
		}
	}
}

func (s taskStep) compile(c *compiler) ([]string, []string) {
	c.tasks = append(c.tasks, s.task)
	return []string{s.task.Name}, []string{s.task.Name}
}

func (s seriesStep) compile(c *compiler) ([]string, []string) {
	var sources, sinks []string
	for _, step := range s.steps {
		src, snk := step.compile(c)
		if len(src) == 0 {
			continue
		}
		if sources == nil {
			sources = src
		} else {
			c.link(sinks, src)
		}
		sinks = snk
	}
	return sources, sinks
}

func (s parallelStep) compile(c *compiler) ([]string, []string) {
	var sources, sinks []string
	for _, step := range s.steps {
		src, snk := step.compile(c)
		sources = append(sources, src...)
		sinks = append(sinks, snk...)
	}
	return sources, sinks
}
