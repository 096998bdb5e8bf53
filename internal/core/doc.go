// Package core provides the domain models for asset transformation tasks.
//
// # Core Types
//
// Task: a named, stateless unit of build work with declared input globs,
// an output directory and a Processor.
// Input: a resolved source file (absolute path, path relative to the task
// base, and content).
// Artifact: a file present in the output tree after a run.
//
// The Runner ties these together: it resolves a task's inputs, hands them to
// the task's Processor together with an OutputWriter scoped to the task's
// output directory, and reports what was written.
package core
