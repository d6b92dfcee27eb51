package analyzer

import (
	_ "embed"
	"sync"

	"kmpls/internal/syntax"
)

// PreludePath is the virtual path of the builtin declarations.
const PreludePath = "builtin:///kotlin/prelude.kt"

//go:embed prelude.kt
var preludeSrc []byte

type preludeIndex struct {
	file   *syntax.File
	byName map[string][]*Symbol
	// extensions keyed by name: top-level callables with a receiver
	exts map[string][]*Symbol
}

var prelude = sync.OnceValue(func() *preludeIndex {
	f := Parse(PreludePath, preludeSrc)
	p := &preludeIndex{
		file:   f,
		byName: make(map[string][]*Symbol),
		exts:   make(map[string][]*Symbol),
	}
	for _, d := range f.Decls {
		sym := declSymbol(d, PreludePath, "", f.Package.Name)
		if d.Receiver != nil {
			p.exts[d.Name] = append(p.exts[d.Name], sym)
			continue
		}
		p.byName[d.Name] = append(p.byName[d.Name], sym)
	}
	return p
})

// BuiltinNames lists top-level builtin declarations.
func BuiltinNames() []string {
	p := prelude()
	out := make([]string, 0, len(p.byName))
	for name := range p.byName {
		out = append(out, name)
	}
	return out
}

// IsBuiltin reports whether name is a builtin top-level declaration or
// extension.
func IsBuiltin(name string) bool {
	p := prelude()
	return len(p.byName[name]) > 0 || len(p.exts[name]) > 0
}

// rootPackages are well-known top-level packages outside the workspace.
var rootPackages = map[string]struct{}{
	"kotlin": {}, "kotlinx": {}, "java": {}, "javax": {}, "android": {}, "androidx": {},
	"platform": {}, "org": {}, "com": {}, "io": {},
}
