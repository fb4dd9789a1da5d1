package graph

import "sort"

// detectCycles runs Tarjan's SCC algorithm with an explicit call stack, so
// deep import chains cannot exhaust the goroutine stack. O(V+E).
func detectCycles(s *state) []Cycle {
	index := 0
	nodeIndex := make(map[string]int)
	lowLink := make(map[string]int)
	onStack := make(map[string]bool)
	var sccStack []string
	var cycles []Cycle

	type callFrame struct {
		node  string
		succ  []string
		next  int
		child string
		phase int // 0 enter, 1 edges, 2 after child, 3 finish
	}

	strongConnect := func(start string) {
		callStack := []callFrame{{node: start}}
		for len(callStack) > 0 {
			frame := &callStack[len(callStack)-1]

			switch frame.phase {
			case 0:
				nodeIndex[frame.node] = index
				lowLink[frame.node] = index
				index++
				sccStack = append(sccStack, frame.node)
				onStack[frame.node] = true
				frame.succ = s.successors(frame.node)
				frame.phase = 1

			case 1:
				pushed := false
				for frame.next < len(frame.succ) {
					w := frame.succ[frame.next]
					frame.next++
					if _, visited := nodeIndex[w]; !visited {
						frame.child = w
						frame.phase = 2
						callStack = append(callStack, callFrame{node: w})
						pushed = true
						break
					}
					if onStack[w] && nodeIndex[w] < lowLink[frame.node] {
						lowLink[frame.node] = nodeIndex[w]
					}
				}
				if !pushed {
					frame.phase = 3
				}

			case 2:
				if lowLink[frame.child] < lowLink[frame.node] {
					lowLink[frame.node] = lowLink[frame.child]
				}
				frame.phase = 1

			case 3:
				if lowLink[frame.node] == nodeIndex[frame.node] {
					var scc []string
					for {
						w := sccStack[len(sccStack)-1]
						sccStack = sccStack[:len(sccStack)-1]
						onStack[w] = false
						scc = append(scc, w)
						if w == frame.node {
							break
						}
					}
					if len(scc) > 1 {
						sort.Strings(scc)
						cycles = append(cycles, Cycle{Files: scc})
					}
				}
				callStack = callStack[:len(callStack)-1]
			}
		}
	}

	paths := s.sortedPaths()
	for _, p := range paths {
		if _, visited := nodeIndex[p]; !visited {
			strongConnect(p)
		}
	}

	for _, p := range paths {
		for _, succ := range s.successors(p) {
			if succ == p {
				cycles = append(cycles, Cycle{Files: []string{p}, SelfLoop: true})
				break
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i].Files) != len(cycles[j].Files) {
			return len(cycles[i].Files) > len(cycles[j].Files)
		}
		return cycles[i].Files[0] < cycles[j].Files[0]
	})
	return cycles
}
