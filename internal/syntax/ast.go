package syntax

import (
	"kmpls/internal/source"
	"kmpls/internal/token"
)

// DeclKind classifies a declaration.
type DeclKind uint8

const (
	DeclInvalid DeclKind = iota
	DeclClass
	DeclInterface
	DeclObject
	DeclEnum
	DeclEnumEntry
	DeclFunction
	DeclProperty
	DeclTypeAlias
	DeclConstructor
)

var declKindNames = [...]string{
	DeclInvalid:     "invalid",
	DeclClass:       "class",
	DeclInterface:   "interface",
	DeclObject:      "object",
	DeclEnum:        "enum",
	DeclEnumEntry:   "enumEntry",
	DeclFunction:    "function",
	DeclProperty:    "property",
	DeclTypeAlias:   "typeAlias",
	DeclConstructor: "constructor",
}

func (k DeclKind) String() string {
	if int(k) < len(declKindNames) {
		return declKindNames[k]
	}
	return "invalid"
}

// IsClassifier reports whether the kind introduces a type name.
func (k DeclKind) IsClassifier() bool {
	switch k {
	case DeclClass, DeclInterface, DeclObject, DeclEnum, DeclTypeAlias:
		return true
	default:
		return false
	}
}

// Modifier is one soft-keyword modifier with its location.
type Modifier struct {
	Name string
	Span source.Span
}

// TypeRef is a syntactic type reference.
type TypeRef struct {
	Text      string
	Span      source.Span
	Name      string // simple name of the outermost user type; "" for function types
	NameSpan  source.Span
	Qualifier string     // dotted prefix for qualified types ("kotlin.collections")
	Args      []*TypeRef // generic arguments; star projections are omitted
	Nullable  bool
	Function  bool // (A) -> B
	Receiver  *TypeRef // A in A.(B) -> C
	Params    []*TypeRef
	Result    *TypeRef
}

// TypeParam is a generic parameter declaration.
type TypeParam struct {
	Name  string
	Span  source.Span
	Bound *TypeRef
}

// Param is a function, constructor or accessor parameter.
type Param struct {
	Name       string
	NameSpan   source.Span
	Span       source.Span
	Type       *TypeRef
	HasDefault bool
	Default    source.Span
	Property   bool // val/var in a primary constructor
	Mutable    bool // var
	Vararg     bool
	Modifiers  []Modifier
}

// BodyKind tells how a function or accessor body is written.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyBlock
	BodyExpr
)

// Decl is a declaration: class-like, callable, property, alias or enum entry.
type Decl struct {
	Kind        DeclKind
	Name        string
	NameSpan    source.Span
	Span        source.Span
	Modifiers   []Modifier
	Annotations []string
	TypeParams  []TypeParam
	Receiver    *TypeRef
	Params      []*Param
	// HasPrimaryCtor is set for classes declaring "(...)" after the name.
	HasPrimaryCtor  bool
	PrimaryCtorSpan source.Span
	Type            *TypeRef // return, property or alias target type
	Supertypes      []*TypeRef
	Members         []*Decl
	Parent          *Decl
	BodyKind        BodyKind
	Body            source.Span
	Init            source.Span // property initializer or delegate expression
	Delegated       bool
	Mutable         bool
	Companion       bool
	Local           bool
	Doc             string
	// Scope is the scope opened by the declaration (class body or function
	// parameters); nil for properties and aliases.
	Scope *Scope
}

// HasModifier reports whether the declaration carries the named modifier.
func (d *Decl) HasModifier(name string) bool {
	if d == nil {
		return false
	}
	for _, m := range d.Modifiers {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Modifier returns the named modifier, if present.
func (d *Decl) Modifier(name string) (Modifier, bool) {
	if d != nil {
		for _, m := range d.Modifiers {
			if m.Name == name {
				return m, true
			}
		}
	}
	return Modifier{}, false
}

// IsExpect reports whether the declaration is marked expect, directly or
// through an enclosing expect class.
func (d *Decl) IsExpect() bool {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur.HasModifier("expect") {
			return true
		}
	}
	return false
}

// IsActual reports whether the declaration is marked actual.
func (d *Decl) IsActual() bool { return d.HasModifier("actual") }

// Container returns the dotted path of enclosing classifiers.
func (d *Decl) Container() string {
	var parts []string
	for cur := d.Parent; cur != nil; cur = cur.Parent {
		name := cur.Name
		if name == "" {
			if cur.Companion {
				name = "Companion"
			} else {
				continue
			}
		}
		parts = append(parts, name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

// ParamNames returns the ordered parameter names.
func (d *Decl) ParamNames() []string {
	out := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		out = append(out, p.Name)
	}
	return out
}

// Import is one import directive.
type Import struct {
	Path      string // full dotted path without ".*"
	Name      string // last segment, or alias when present
	Alias     string
	Star      bool
	Span      source.Span
	PathSpan  source.Span
	NameSpan  source.Span // last path segment
	AliasSpan source.Span
}

// Package describes the package header.
type Package struct {
	Name string
	Span source.Span
}

// ScopeKind classifies a lexical scope.
type ScopeKind uint8

const (
	ScopeFile ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeBlock
	ScopeLambda
)

// LocalKind classifies a name introduced inside a scope.
type LocalKind uint8

const (
	LocalVal LocalKind = iota
	LocalVar
	LocalParam
	LocalLambdaParam
	LocalIt
	LocalLoopVar
	LocalCatchParam
	LocalFun
	LocalClass
	LocalTypeParam
	LocalSetterValue
)

// Local is a name declared inside a scope.
type Local struct {
	Name     string
	NameSpan source.Span
	Kind     LocalKind
	Type     *TypeRef
	Init     source.Span
	Decl     *Decl  // local function or class; owner for parameters
	Param    *Param // for LocalParam
	Scope    *Scope
}

// Scope is a lexical region with the names it declares.
type Scope struct {
	Kind     ScopeKind
	Span     source.Span
	Parent   *Scope
	Children []*Scope
	Owner    *Decl
	Locals   []*Local
	// CallRef is the index in File.Refs of the call a lambda is passed to,
	// or -1.
	CallRef int
}

// RefKind classifies an identifier use.
type RefKind uint8

const (
	RefName RefKind = iota
	RefMember
	RefType
	RefCallable
	RefNamedArg
	RefImport
)

// ReceiverKind describes what stands left of a member reference.
type ReceiverKind uint8

const (
	RecvNone ReceiverKind = iota
	RecvRef
	RecvThis
	RecvSuper
	RecvLiteral
	RecvUnknown
)

// Ref is an identifier occurrence that may resolve to a declaration.
type Ref struct {
	Name      string
	Span      source.Span
	Kind      RefKind
	Call      bool
	Args      int // argument count for calls, including a trailing lambda
	Qualifier string
	Recv      ReceiverKind
	RecvRef   int        // index into File.Refs when Recv == RecvRef
	RecvLit   token.Kind // literal kind when Recv == RecvLiteral
	FirstArg  int        // index of a simple first argument ref, or -1
	Scope     *Scope
	Decl      *Decl // innermost enclosing declaration
}

// Error is a syntax error.
type Error struct {
	Span    source.Span
	Code    string
	Message string
}

// File is the structural parse of one source file.
type File struct {
	Path    string
	Source  *source.File
	Tokens  []token.Token
	Package Package
	Imports []*Import
	Decls   []*Decl
	Refs    []Ref
	Root    *Scope
	Errors  []Error
	Script  bool

	// LocalDecls holds functions, classes and objects declared in bodies.
	LocalDecls []*Decl
}
