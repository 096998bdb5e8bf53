package dag

import "container/heap"

// validateAcyclic runs Kahn's algorithm and, when tasks remain unordered,
// reports one cycle among them.
func (g *TaskGraph) validateAcyclic() error {
	order, residual := g.kahn()
	if len(order) == len(g.nodes) {
		return nil
	}
	return cycleError(g.cycleWitness(residual))
}

// topoOrderIndices returns the canonical topological order: among ready
// tasks the lowest canonical index goes first.
func (g *TaskGraph) topoOrderIndices() []int {
	order, _ := g.kahn()
	return order
}

// kahn returns the topological order of every orderable node and, for the
// rest, their remaining in-degree (zero for ordered nodes).
func (g *TaskGraph) kahn() (order []int, residual []int) {
	residual = make([]int, len(g.indeg))
	copy(residual, g.indeg)

	ready := &indexHeap{}
	for i, d := range residual {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	order = make([]int, 0, len(residual))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range g.outgoing[n] {
			residual[m]--
			if residual[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return order, residual
}

// cycleWitness walks backwards from the lowest unordered node, always taking
// its lowest unordered dependency. Every unordered node has one, so the walk
// must revisit a node; the loop it closes is returned in edge direction,
// starting and ending with the same task.
func (g *TaskGraph) cycleWitness(residual []int) []string {
	start := -1
	for i, d := range residual {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var walk []int
	for u := start; ; {
		if at, seen := pos[u]; seen {
			walk = append(walk[at:], u)
			break
		}
		pos[u] = len(walk)
		walk = append(walk, u)

		next := -1
		for _, p := range g.incoming[u] { // sorted ascending
			if residual[p] > 0 {
				next = p
				break
			}
		}
		if next < 0 {
			return nil
		}
		u = next
	}

	out := make([]string, len(walk))
	for i, idx := range walk {
		out[len(walk)-1-i] = g.nodes[idx].Name
	}
	return out
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
