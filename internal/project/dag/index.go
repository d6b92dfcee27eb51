package dag

import (
	"sort"

	"kmpls/internal/project"
)

type ModuleID uint32

type ModuleIndex struct {
	NameToID map[string]ModuleID
	IDToName []string
}

// собрать уникальные имена модулей и целей dependsOn, sort.Strings, раздать ID по порядку
func BuildIndex(mods []project.ModuleDescriptor) ModuleIndex {
	uniq := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		if m.Name != "" {
			uniq[m.Name] = struct{}{}
		}
		for _, dep := range m.DependsOn {
			if dep == "" {
				continue
			}
			uniq[dep] = struct{}{}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]ModuleID, len(names))
	for i, name := range names {
		nameToID[name] = ModuleID(i)
	}

	return ModuleIndex{
		NameToID: nameToID,
		IDToName: names,
	}
}

// Names maps ids back to module names.
func (idx ModuleIndex) Names(ids []ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToName[int(id)]
	}
	return out
}
