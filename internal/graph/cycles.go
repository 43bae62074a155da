package graph

import (
	"sort"
	"strings"
)

// Cycle is one strongly connected component with a representative closed walk.
type Cycle struct {
	// Members lists the component's package names in sorted order.
	Members []string `json:"members" yaml:"members"`
	// Walk starts and ends at the smallest member and visits every member.
	Walk []string `json:"walk" yaml:"walk"`
}

// String renders the walk as "a -> b -> a".
func (cycle Cycle) String() string {
	return strings.Join(cycle.Walk, cycleWalkSeparatorConstant)
}

// sccState holds Tarjan's algorithm state for a single node.
type sccState struct {
	index   int
	lowlink int
	onStack bool
}

// FindCycles reports every component of size greater than one and every self loop.
// Nodes and neighbors are visited in name order, so results do not depend on input order.
func (dependencyGraph *DependencyGraph) FindCycles() []Cycle {
	var (
		nextIndex  int
		stack      []int
		states     = make([]*sccState, len(dependencyGraph.packages))
		components [][]int
	)

	var strongConnect func(int)
	strongConnect = func(nodeIndex int) {
		states[nodeIndex] = &sccState{index: nextIndex, lowlink: nextIndex, onStack: true}
		nextIndex++
		stack = append(stack, nodeIndex)

		for _, successor := range dependencyGraph.forward[nodeIndex] {
			successorState := states[successor]
			if successorState == nil {
				strongConnect(successor)
				if states[successor].lowlink < states[nodeIndex].lowlink {
					states[nodeIndex].lowlink = states[successor].lowlink
				}
			} else if successorState.onStack && successorState.index < states[nodeIndex].lowlink {
				states[nodeIndex].lowlink = successorState.index
			}
		}

		if states[nodeIndex].lowlink != states[nodeIndex].index {
			return
		}

		var component []int
		for {
			member := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			states[member].onStack = false
			component = append(component, member)
			if member == nodeIndex {
				break
			}
		}
		if len(component) > 1 || dependencyGraph.hasSelfLoop(component[0]) {
			components = append(components, component)
		}
	}

	for nodeIndex := range dependencyGraph.packages {
		if states[nodeIndex] == nil {
			strongConnect(nodeIndex)
		}
	}

	cycles := make([]Cycle, 0, len(components))
	for _, component := range components {
		sort.Ints(component)
		cycles = append(cycles, Cycle{
			Members: dependencyGraph.namesOf(component),
			Walk:    dependencyGraph.namesOf(dependencyGraph.closedWalk(component)),
		})
	}
	sort.Slice(cycles, func(leftIndex, rightIndex int) bool {
		return cycles[leftIndex].Members[0] < cycles[rightIndex].Members[0]
	})
	return cycles
}

func (dependencyGraph *DependencyGraph) hasSelfLoop(nodeIndex int) bool {
	for _, successor := range dependencyGraph.forward[nodeIndex] {
		if successor == nodeIndex {
			return true
		}
	}
	return false
}

// closedWalk stitches shortest in-component paths from the smallest member through
// every unvisited member, then back to the start. component must be sorted.
func (dependencyGraph *DependencyGraph) closedWalk(component []int) []int {
	start := component[0]
	if len(component) == 1 {
		return []int{start, start}
	}

	allowed := make(map[int]struct{}, len(component))
	for _, member := range component {
		allowed[member] = struct{}{}
	}

	visited := map[int]struct{}{start: {}}
	walk := []int{start}
	current := start
	for len(visited) < len(component) {
		for _, target := range component {
			if _, seen := visited[target]; seen {
				continue
			}
			segment := dependencyGraph.shortestPath(current, target, allowed)
			for _, step := range segment[1:] {
				visited[step] = struct{}{}
				walk = append(walk, step)
			}
			current = target
			break
		}
	}

	returnSegment := dependencyGraph.shortestPath(current, start, allowed)
	return append(walk, returnSegment[1:]...)
}
