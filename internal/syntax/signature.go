package syntax

import (
	"strings"
)

// Signature renders a one-line header such as "fun greet(name: String): String".
func (d *Decl) Signature() string { return d.SignatureWith("") }

// SignatureWith renders the header using inferred as the type when the
// declaration has no explicit one.
func (d *Decl) SignatureWith(inferred string) string {
	var b strings.Builder
	for _, m := range d.Modifiers {
		if m.Name == "companion" && d.Kind == DeclObject {
			continue
		}
		b.WriteString(m.Name)
		b.WriteByte(' ')
	}
	switch d.Kind {
	case DeclClass:
		b.WriteString("class ")
	case DeclEnum:
		b.WriteString("class ")
	case DeclInterface:
		b.WriteString("interface ")
	case DeclObject:
		if d.Companion {
			b.WriteString("companion ")
		}
		b.WriteString("object ")
	case DeclFunction:
		b.WriteString("fun ")
	case DeclProperty:
		if d.Mutable {
			b.WriteString("var ")
		} else {
			b.WriteString("val ")
		}
	case DeclTypeAlias:
		b.WriteString("typealias ")
	case DeclConstructor:
		b.WriteString("constructor")
		writeParams(&b, d.Params, false)
		return b.String()
	case DeclEnumEntry:
		if d.Parent != nil && d.Parent.Name != "" {
			b.WriteString(d.Parent.Name)
			b.WriteByte('.')
		}
		b.WriteString(d.Name)
		return b.String()
	}
	if len(d.TypeParams) > 0 && (d.Kind == DeclFunction || d.Kind == DeclProperty) {
		writeTypeParams(&b, d.TypeParams)
		b.WriteByte(' ')
	}
	if d.Receiver != nil {
		b.WriteString(d.Receiver.Text)
		b.WriteByte('.')
	}
	b.WriteString(d.Name)
	if len(d.TypeParams) > 0 && d.Kind != DeclFunction && d.Kind != DeclProperty {
		writeTypeParams(&b, d.TypeParams)
	}
	switch d.Kind {
	case DeclFunction:
		writeParams(&b, d.Params, false)
		typ := inferred
		if d.Type != nil {
			typ = d.Type.Text
		}
		if typ != "" && typ != "Unit" {
			b.WriteString(": ")
			b.WriteString(typ)
		}
	case DeclProperty:
		typ := inferred
		if d.Type != nil {
			typ = d.Type.Text
		}
		if typ != "" {
			b.WriteString(": ")
			b.WriteString(typ)
		}
	case DeclTypeAlias:
		if d.Type != nil {
			b.WriteString(" = ")
			b.WriteString(d.Type.Text)
		}
	case DeclClass, DeclEnum:
		if d.HasPrimaryCtor {
			writeParams(&b, d.Params, true)
		}
		writeSupertypes(&b, d.Supertypes)
	case DeclInterface, DeclObject:
		writeSupertypes(&b, d.Supertypes)
	}
	return b.String()
}

// Label renders one parameter the way signature help shows it.
func (prm *Param) Label() string {
	var b strings.Builder
	writeParam(&b, prm, false)
	return b.String()
}

func writeParams(b *strings.Builder, params []*Param, withProperty bool) {
	b.WriteByte('(')
	for i, prm := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		writeParam(b, prm, withProperty)
	}
	b.WriteByte(')')
}

func writeParam(b *strings.Builder, prm *Param, withProperty bool) {
	if prm.Vararg {
		b.WriteString("vararg ")
	}
	if withProperty && prm.Property {
		if prm.Mutable {
			b.WriteString("var ")
		} else {
			b.WriteString("val ")
		}
	}
	b.WriteString(prm.Name)
	if prm.Type != nil {
		b.WriteString(": ")
		b.WriteString(prm.Type.Text)
	}
	if prm.HasDefault {
		b.WriteString(" = ...")
	}
}

func writeTypeParams(b *strings.Builder, tps []TypeParam) {
	b.WriteByte('<')
	for i, tp := range tps {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tp.Name)
		if tp.Bound != nil {
			b.WriteString(" : ")
			b.WriteString(tp.Bound.Text)
		}
	}
	b.WriteByte('>')
}

func writeSupertypes(b *strings.Builder, sts []*TypeRef) {
	for i, st := range sts {
		if i == 0 {
			b.WriteString(" : ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(st.Text)
	}
}

// cleanDoc strips comment markers from a KDoc block.
func cleanDoc(raw string) string {
	if raw == "" {
		return ""
	}
	raw = strings.TrimPrefix(raw, "/**")
	raw = strings.TrimSuffix(raw, "*/")
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		line = strings.TrimPrefix(line, "*")
		out = append(out, strings.TrimPrefix(line, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
