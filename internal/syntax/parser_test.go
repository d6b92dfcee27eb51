package syntax_test

import (
	"strings"
	"testing"

	"kmpls/internal/syntax"
)

const greeterSrc = `package com.example

import kotlin.math.max
import com.example.util.*

/** Greets people. */
class Greeter(val prefix: String, name: String) : Base(name), Named {
    fun greet(name: String): String = "$prefix, ${name.uppercase()}"
    companion object { const val DEFAULT = "Hi" }
}

enum class Mode { ON, OFF }

expect fun platformName(): String

fun String.shout(): String = this + "!"
val Int.double get() = this * 2
typealias Names = List<String>
`

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	return syntax.ParseText("/src/test.kt", src)
}

func noErrors(t *testing.T, f *syntax.File) {
	t.Helper()
	if len(f.Errors) != 0 {
		t.Fatalf("unexpected syntax errors: %+v", f.Errors)
	}
}

func offsetOf(t *testing.T, src, needle string, delta int) uint32 {
	t.Helper()
	i := strings.Index(src, needle)
	if i < 0 {
		t.Fatalf("%q not found", needle)
	}
	return uint32(i + delta)
}

func TestParseDeclarations(t *testing.T) {
	f := parse(t, greeterSrc)
	noErrors(t, f)
	if f.Package.Name != "com.example" {
		t.Fatalf("package = %q", f.Package.Name)
	}
	if len(f.Imports) != 2 || f.Imports[0].Name != "max" || !f.Imports[1].Star || f.Imports[1].Path != "com.example.util" {
		t.Fatalf("imports = %+v %+v", f.Imports[0], f.Imports[1])
	}
	var names []string
	for _, d := range f.Decls {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "Greeter,Mode,platformName,shout,double,Names" {
		t.Fatalf("top-level decls = %s", got)
	}

	greeter := f.Decls[0]
	if greeter.Kind != syntax.DeclClass || !greeter.HasPrimaryCtor || len(greeter.Params) != 2 {
		t.Fatalf("greeter = %+v", greeter)
	}
	if !greeter.Params[0].Property || greeter.Params[1].Property {
		t.Fatal("only prefix is a property parameter")
	}
	if len(greeter.Supertypes) != 2 || greeter.Supertypes[0].Name != "Base" || greeter.Supertypes[1].Name != "Named" {
		t.Fatalf("supertypes = %+v", greeter.Supertypes)
	}
	if greeter.Doc != "Greets people." {
		t.Fatalf("doc = %q", greeter.Doc)
	}
	if len(greeter.Members) != 2 || greeter.Members[0].Name != "greet" || greeter.Members[1].Name != "Companion" {
		t.Fatalf("members = %+v", greeter.Members)
	}
	companion := greeter.Members[1]
	if !companion.Companion || len(companion.Members) != 1 || companion.Members[0].Name != "DEFAULT" {
		t.Fatalf("companion = %+v", companion)
	}
	if got := companion.Members[0].Container(); got != "Greeter.Companion" {
		t.Fatalf("container = %q", got)
	}

	mode := f.Decls[1]
	if mode.Kind != syntax.DeclEnum || len(mode.Members) != 2 || mode.Members[1].Kind != syntax.DeclEnumEntry {
		t.Fatalf("mode = %+v", mode)
	}
	if !f.Decls[2].IsExpect() || f.Decls[2].Type.Name != "String" {
		t.Fatal("platformName should be an expect function returning String")
	}
	if r := f.Decls[3].Receiver; r == nil || r.Name != "String" {
		t.Fatalf("shout receiver = %+v", r)
	}
	if r := f.Decls[4].Receiver; r == nil || r.Name != "Int" || f.Decls[4].Kind != syntax.DeclProperty {
		t.Fatalf("double = %+v", f.Decls[4])
	}
	if alias := f.Decls[5]; alias.Kind != syntax.DeclTypeAlias || alias.Type.Name != "List" || len(alias.Type.Args) != 1 {
		t.Fatalf("alias = %+v", alias)
	}
}

func TestSignatures(t *testing.T) {
	f := parse(t, greeterSrc)
	tests := []struct {
		decl *syntax.Decl
		want string
	}{
		{f.Decls[0].Members[0], "fun greet(name: String): String"},
		{f.Decls[0], "class Greeter(val prefix: String, name: String) : Base, Named"},
		{f.Decls[2], "expect fun platformName(): String"},
		{f.Decls[3], "fun String.shout(): String"},
		{f.Decls[5], "typealias Names = List<String>"},
		{f.Decls[1].Members[0], "Mode.ON"},
	}
	for _, tt := range tests {
		if got := tt.decl.Signature(); got != tt.want {
			t.Errorf("Signature() = %q, want %q", got, tt.want)
		}
	}
}

const bodySrc = `fun main(args: Array<String>) {
    val greeter = Greeter("Hi", "x")
    for (item in args) {
        println(item)
    }
    args.forEach { println(it) }
    listOf(1, 2).map { n -> n * 2 }
    try { risky() } catch (e: Exception) { e.printStackTrace() }
}
`

func TestBodyScopesAndLocals(t *testing.T) {
	f := parse(t, bodySrc)
	noErrors(t, f)

	off := offsetOf(t, bodySrc, "println(item)", len("println("))
	seen := map[string]bool{}
	for _, l := range f.VisibleLocalsAt(off) {
		seen[l.Name] = true
	}
	for _, name := range []string{"item", "greeter", "args"} {
		if !seen[name] {
			t.Fatalf("%s should be visible, got %v", name, seen)
		}
	}

	itOff := offsetOf(t, bodySrc, "println(it)", len("println("))
	lambda := f.ScopeAt(itOff)
	if lambda.Kind != syntax.ScopeLambda || len(lambda.Locals) != 1 || lambda.Locals[0].Kind != syntax.LocalIt {
		t.Fatalf("forEach lambda scope = %+v", lambda)
	}
	if lambda.CallRef < 0 || f.Refs[lambda.CallRef].Name != "forEach" {
		t.Fatalf("lambda call ref = %d", lambda.CallRef)
	}
	forEach := f.Refs[lambda.CallRef]
	if forEach.Kind != syntax.RefMember || forEach.Recv != syntax.RecvRef || f.Refs[forEach.RecvRef].Name != "args" {
		t.Fatalf("forEach ref = %+v", forEach)
	}

	nOff := offsetOf(t, bodySrc, "n * 2", 0)
	mapScope := f.ScopeAt(nOff)
	if len(mapScope.Locals) != 1 || mapScope.Locals[0].Name != "n" || mapScope.Locals[0].Kind != syntax.LocalLambdaParam {
		t.Fatalf("map lambda locals = %+v", mapScope.Locals)
	}

	eOff := offsetOf(t, bodySrc, "e.printStackTrace", 0)
	var catchParam *syntax.Local
	for _, l := range f.VisibleLocalsAt(eOff) {
		if l.Name == "e" {
			catchParam = l
		}
	}
	if catchParam == nil || catchParam.Kind != syntax.LocalCatchParam || catchParam.Type.Name != "Exception" {
		t.Fatalf("catch param = %+v", catchParam)
	}

	idx := f.RefsNamed("Greeter")
	if len(idx) != 1 || !f.Refs[idx[0]].Call || f.Refs[idx[0]].Args != 2 {
		t.Fatalf("Greeter call ref = %+v", idx)
	}
}

func TestLocalVisibility(t *testing.T) {
	src := "fun f() {\n    val b = a\n    val a = 1\n    println(a)\n}\n"
	f := parse(t, src)
	noErrors(t, f)
	early := offsetOf(t, src, "= a", 2)
	for _, l := range f.VisibleLocalsAt(early) {
		if l.Name == "a" {
			t.Fatal("a must not be visible before its declaration")
		}
	}
	late := offsetOf(t, src, "println(a)", len("println("))
	found := false
	for _, l := range f.VisibleLocalsAt(late) {
		if l.Name == "a" {
			found = true
		}
	}
	if !found {
		t.Fatal("a should be visible after its declaration")
	}
}

func TestTemplateAndNamedArgRefs(t *testing.T) {
	src := "fun f(user: User) = \"Hi ${user.name} $count\"\nfun g() = build(size = 3, color = red)\n"
	f := parse(t, src)
	noErrors(t, f)

	name := f.RefsNamed("name")
	if len(name) != 1 {
		t.Fatalf("name refs = %v", name)
	}
	r := f.Refs[name[0]]
	if r.Kind != syntax.RefMember || r.Recv != syntax.RecvRef || f.Refs[r.RecvRef].Name != "user" {
		t.Fatalf("template member ref = %+v", r)
	}
	if len(f.RefsNamed("count")) != 1 {
		t.Fatal("simple template ref missing")
	}

	size := f.RefsNamed("size")
	if len(size) != 1 || f.Refs[size[0]].Kind != syntax.RefNamedArg {
		t.Fatalf("size refs = %v", size)
	}
	if call := f.Refs[size[0]].RecvRef; call < 0 || f.Refs[call].Name != "build" {
		t.Fatalf("named arg owner = %d", call)
	}
	if red := f.RefsNamed("red"); len(red) != 1 || f.Refs[red[0]].Kind != syntax.RefName {
		t.Fatalf("red refs = %v", red)
	}
}

func TestErrorRecovery(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		decls string
	}{
		{"missing paren", "fun broken(x: Int {\n}\nclass Ok\n", "broken,Ok"},
		{"stray token", "val x = 1\n)\nfun ok() {}\n", "x,ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parse(t, tt.src)
			if len(f.Errors) == 0 {
				t.Fatal("expected syntax errors")
			}
			var names []string
			for _, d := range f.Decls {
				names = append(names, d.Name)
			}
			if got := strings.Join(names, ","); got != tt.decls {
				t.Fatalf("decls = %s, want %s", got, tt.decls)
			}
		})
	}
}

func TestDeclAndRefAt(t *testing.T) {
	f := parse(t, greeterSrc)
	d := f.DeclAt(offsetOf(t, greeterSrc, "greet(", 2))
	if d == nil || d.Name != "greet" {
		t.Fatalf("DeclAt = %+v", d)
	}
	// cursor right after the identifier still hits it
	i, ok := f.RefAt(offsetOf(t, greeterSrc, "Base(", len("Base")))
	if !ok || f.Refs[i].Name != "Base" || f.Refs[i].Kind != syntax.RefType {
		t.Fatalf("RefAt = %d %v", i, ok)
	}
}
