package meta

import (
	"fmt"
	"strings"
)

// QualifiedName renders t with every named component prefixed by its scope,
// e.g. "[Host]Game.Batch<[System]System.Int32>".
func QualifiedName(t *TypeRef) string {
	var sb strings.Builder
	writeQualified(&sb, t, 0)
	return sb.String()
}

func writeQualified(sb *strings.Builder, t *TypeRef, depth int) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	if depth > maxNameDepth {
		sb.WriteString("...")
		return
	}
	switch t.Kind {
	case RefNamed, RefGenericInst:
		if t.Scope != "" {
			sb.WriteString("[" + t.Scope + "]")
		}
		sb.WriteString(t.DefinitionName())
		if t.Kind == RefGenericInst {
			sb.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteByte(',')
				}
				writeQualified(sb, a, depth+1)
			}
			sb.WriteByte('>')
		}
	case RefGenericParam:
		sb.WriteString("!" + t.Name)
	case RefArray:
		writeQualified(sb, t.Elem, depth+1)
		sb.WriteString("[]")
	case RefByRef:
		writeQualified(sb, t.Elem, depth+1)
		sb.WriteByte('&')
	default:
		sb.WriteString("<invalid>")
	}
}

// Dump renders m as stable text. Two modules with equal dumps are
// structurally identical.
func Dump(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s", m.Name)
	if m.Platform != "" {
		fmt.Fprintf(&sb, " platform=%s", m.Platform)
	}
	sb.WriteByte('\n')
	for _, s := range m.Scopes {
		fmt.Fprintf(&sb, "scope %s\n", s)
	}
	for _, t := range m.Types {
		dumpType(&sb, t, "")
	}
	return sb.String()
}

func dumpType(sb *strings.Builder, t *TypeDef, indent string) {
	fmt.Fprintf(sb, "%stype %s", indent, t.FullName())
	if t.Synthetic {
		sb.WriteString(" synthetic")
	}
	if t.BaseType != nil {
		sb.WriteString(" : " + QualifiedName(t.BaseType))
	}
	for _, i := range t.Interfaces {
		sb.WriteString(", " + QualifiedName(i))
	}
	sb.WriteByte('\n')
	inner := indent + "  "
	dumpGenericParams(sb, t.GenericParams, inner)
	for _, f := range t.Fields {
		static := ""
		if f.Static {
			static = "static "
		}
		fmt.Fprintf(sb, "%sfield %s%s %s\n", inner, static, QualifiedName(f.Type), f.Name)
	}
	for _, m := range t.Methods {
		dumpMethod(sb, m, inner)
	}
	for _, n := range t.Nested {
		dumpType(sb, n, inner)
	}
}

func dumpGenericParams(sb *strings.Builder, ps []*GenericParam, indent string) {
	for _, p := range ps {
		fmt.Fprintf(sb, "%sgeneric %d %s", indent, p.Position, p.Name)
		for i, c := range p.Constraints {
			if i == 0 {
				sb.WriteString(" : ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(QualifiedName(c))
		}
		sb.WriteByte('\n')
	}
}

func dumpMethod(sb *strings.Builder, m *MethodDef, indent string) {
	static := ""
	if m.Static {
		static = "static "
	}
	fmt.Fprintf(sb, "%smethod %s%s %s(", indent, static, QualifiedName(m.Return), m.Name)
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QualifiedName(p.Type))
		if p.Name != "" {
			sb.WriteString(" " + p.Name)
		}
	}
	sb.WriteString(")\n")
	inner := indent + "  "
	dumpGenericParams(sb, m.GenericParams, inner)
	if m.Body == nil {
		return
	}
	for _, l := range m.Body.Locals {
		fmt.Fprintf(sb, "%slocal %d %s\n", inner, l.Index, QualifiedName(l.Type))
	}
	for i, in := range m.Body.Instructions {
		fmt.Fprintf(sb, "%sIL_%04x %s", inner, i, in.Op)
		if in.Operand != nil {
			sb.WriteString(" " + FormatOperand(in.Operand))
		}
		sb.WriteByte('\n')
	}
}

// FormatOperand renders an instruction operand with scopes.
func FormatOperand(op any) string {
	switch op := op.(type) {
	case *TypeRef:
		return QualifiedName(op)
	case *FieldRef:
		return QualifiedName(op.Type) + " " + QualifiedName(op.DeclaringType) + "::" + op.Name
	case *MethodRef:
		var sb strings.Builder
		if op.HasThis {
			sb.WriteString("instance ")
		}
		sb.WriteString(QualifiedName(op.Return) + " " + QualifiedName(op.DeclaringType) + "::" + op.Name)
		if len(op.GenericArgs) > 0 {
			sb.WriteByte('<')
			for i, a := range op.GenericArgs {
				if i > 0 {
					sb.WriteByte(',')
				}
				sb.WriteString(QualifiedName(a))
			}
			sb.WriteByte('>')
		}
		sb.WriteByte('(')
		for i, p := range op.Params {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(QualifiedName(p))
		}
		sb.WriteByte(')')
		return sb.String()
	case string:
		return fmt.Sprintf("%q", op)
	default:
		return fmt.Sprint(op)
	}
}
