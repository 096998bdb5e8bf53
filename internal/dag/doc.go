// Package dag defines the deterministic domain model for assetweaver's build
// graph.
//
// It is split into:
//   - Immutable graph definition (TaskGraph): tasks + must-complete-before
//     edges + stable GraphHash
//   - Mutable execution state (ExecutionState): runtime statuses and results
//
// The graph identity (GraphHash) is computed from task definition content and
// canonicalized edge structure, making it invariant to insertion order.
package dag
