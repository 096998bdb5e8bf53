package dag

import "sort"

// GetReadyTasks returns the PENDING tasks whose dependencies have all
// COMPLETED, ordered by depth and then name. It does not modify state.
func GetReadyTasks(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	type candidate struct {
		name  string
		depth int
	}
	var ready []candidate
	for _, node := range g.nodes {
		if state[node.Name] != TaskPending {
			continue
		}
		if g.dependenciesDone(node.canonicalIndex, state) {
			ready = append(ready, candidate{name: node.Name, depth: g.depth[node.canonicalIndex]})
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].depth != ready[j].depth {
			return ready[i].depth < ready[j].depth
		}
		return ready[i].name < ready[j].name
	})

	out := make([]string, len(ready))
	for i, c := range ready {
		out[i] = c.name
	}
	return out
}

func (g *TaskGraph) dependenciesDone(idx int, state ExecutionState) bool {
	for _, p := range g.incoming[idx] {
		if !IsSuccessful(state[g.nodes[p].Name]) {
			return false
		}
	}
	return true
}
