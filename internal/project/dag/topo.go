package dag

import (
	"fmt"

	"fortio.org/safecast"

	"kmpls/internal/project"
)

// BackEdge is a dependsOn edge that closed a cycle and was skipped.
type BackEdge struct {
	From, To ModuleID
}

type Topo struct {
	Order   []ModuleID   // зависимости раньше зависимых (только реальные модули)
	Batches [][]ModuleID // слои по глубине: Batches[0] ни от кого не зависит
	Cyclic  bool
	Cycles  []BackEdge // рёбра, по которым DFS вернулся в модуль со статусом visiting
}

const (
	unvisited uint8 = iota
	visiting
	done
)

// ToposortDFS orders modules depth-first in declaration order. A module met
// again while still being visited is treated as having no further
// dependencies, so the walk always terminates.
func ToposortDFS(g Graph) *Topo {
	nodeCount := len(g.Edges)
	state := make([]uint8, nodeCount)
	depth := make([]int, nodeCount)
	topo := &Topo{Order: make([]ModuleID, 0, len(g.Decl))}

	var visit func(id ModuleID)
	visit = func(id ModuleID) {
		state[int(id)] = visiting
		d := 0
		for _, to := range g.Edges[int(id)] {
			if !g.Present[int(to)] {
				continue
			}
			switch state[int(to)] {
			case visiting:
				topo.Cyclic = true
				topo.Cycles = append(topo.Cycles, BackEdge{From: id, To: to})
				continue
			case unvisited:
				visit(to)
			}
			if depth[int(to)]+1 > d {
				d = depth[int(to)] + 1
			}
		}
		depth[int(id)] = d
		state[int(id)] = done
		topo.Order = append(topo.Order, id)
	}

	for _, id := range g.Decl {
		if state[int(id)] == unvisited {
			visit(id)
		}
	}

	for _, id := range topo.Order {
		d := depth[int(id)]
		for len(topo.Batches) <= d {
			topo.Batches = append(topo.Batches, nil)
		}
		topo.Batches[d] = append(topo.Batches[d], id)
	}
	return topo
}

// IDOf converts a slot index to a ModuleID.
func IDOf(i int) ModuleID {
	id, err := safecast.Conv[ModuleID](i)
	if err != nil {
		panic(fmt.Errorf("module id overflow: %w", err))
	}
	return id
}

// Order sorts the descriptor's modules with ToposortDFS, dependencies first,
// and returns them together with the skipped back edges as names.
func Order(mods []project.ModuleDescriptor) ([]project.ModuleDescriptor, [][2]string) {
	idx := BuildIndex(mods)
	g, slots := BuildGraph(idx, mods)
	topo := ToposortDFS(g)
	out := make([]project.ModuleDescriptor, 0, len(topo.Order))
	for _, id := range topo.Order {
		out = append(out, slots[int(id)].Module)
	}
	var cycles [][2]string
	for _, e := range topo.Cycles {
		cycles = append(cycles, [2]string{idx.IDToName[int(e.From)], idx.IDToName[int(e.To)]})
	}
	return out, cycles
}
