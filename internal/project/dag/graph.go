package dag

import (
	"slices"

	"kmpls/internal/project"
)

type Graph struct {
	Edges   [][]ModuleID // Edges[from] = []to, from зависит от to
	Present []bool       // признак, что модуль реально описан (а не только упомянут в dependsOn)
	Decl    []ModuleID   // порядок объявления присутствующих модулей
}

type ModuleSlot struct {
	Module  project.ModuleDescriptor
	Present bool
}

// BuildGraph wires dependsOn edges. Duplicate modules keep the first entry;
// self edges and edges to undeclared modules are dropped. Descriptor.Validate
// reports all of these.
func BuildGraph(idx ModuleIndex, mods []project.ModuleDescriptor) (Graph, []ModuleSlot) {
	nodeCount := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]ModuleID, nodeCount),
		Present: make([]bool, nodeCount),
		Decl:    make([]ModuleID, 0, len(mods)),
	}
	slots := make([]ModuleSlot, nodeCount)
	for i, name := range idx.IDToName {
		slots[i].Module.Name = name
	}

	for _, m := range mods {
		if m.Name == "" {
			continue
		}
		id, ok := idx.NameToID[m.Name]
		if !ok {
			// не должно происходить, индекс строится на тех же дескрипторах
			continue
		}
		slot := &slots[int(id)]
		if slot.Present {
			continue
		}
		slot.Module = m
		slot.Present = true
		g.Present[int(id)] = true
		g.Decl = append(g.Decl, id)
	}

	for from := range slots {
		slot := &slots[from]
		if !slot.Present || len(slot.Module.DependsOn) == 0 {
			continue
		}
		seen := make(map[ModuleID]struct{}, len(slot.Module.DependsOn))
		for _, dep := range slot.Module.DependsOn {
			toID, ok := idx.NameToID[dep]
			if !ok || IDOf(from) == toID || !g.Present[int(toID)] {
				continue
			}
			if _, dup := seen[toID]; dup {
				continue
			}
			seen[toID] = struct{}{}
			g.Edges[from] = append(g.Edges[from], toID)
		}
		if len(g.Edges[from]) > 1 {
			slices.Sort(g.Edges[from])
		}
	}

	return g, slots
}

// Closure returns id and every module reachable from it through dependsOn.
func Closure(g Graph, id ModuleID) []ModuleID {
	seen := make([]bool, len(g.Edges))
	var out []ModuleID
	stack := []ModuleID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[int(cur)] {
			continue
		}
		seen[int(cur)] = true
		out = append(out, cur)
		for i := len(g.Edges[int(cur)]) - 1; i >= 0; i-- {
			stack = append(stack, g.Edges[int(cur)][i])
		}
	}
	return out
}

// Dependents returns the modules whose dependsOn closure contains id, id excluded.
func Dependents(g Graph, id ModuleID) []ModuleID {
	var out []ModuleID
	for _, from := range g.Decl {
		if from == id {
			continue
		}
		if slices.Contains(Closure(g, from), id) {
			out = append(out, from)
		}
	}
	return out
}
