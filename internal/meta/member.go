package meta

import (
	"slices"
	"strings"
)

// CtorName is the member name constructors are declared under.
const CtorName = ".ctor"

// FieldRef points at a field through its declaring type.
type FieldRef struct {
	DeclaringType *TypeRef
	Name          string
	Type          *TypeRef
}

func (*FieldRef) refNode() {}

// FullName renders "Declaring::Name".
func (f *FieldRef) FullName() string {
	if f == nil {
		return "<nil>"
	}
	return f.DeclaringType.FullName() + "::" + f.Name
}

func (f *FieldRef) String() string {
	if f == nil {
		return "<nil>"
	}
	return f.Type.FullName() + " " + f.FullName()
}

// Copy returns a shallow copy whose type slots can be reassigned without
// touching f. The referenced TypeRefs are shared.
func (f *FieldRef) Copy() *FieldRef {
	if f == nil {
		return nil
	}
	out := *f
	return &out
}

// MethodRef points at a method through its declaring type plus signature.
type MethodRef struct {
	DeclaringType *TypeRef
	Name          string
	HasThis       bool
	Return        *TypeRef
	Params        []*TypeRef
	GenericArgs   []*TypeRef // generic method instantiation
}

func (*MethodRef) refNode() {}

// FullName renders "Declaring::Name".
func (m *MethodRef) FullName() string {
	if m == nil {
		return "<nil>"
	}
	return m.DeclaringType.FullName() + "::" + m.Name
}

// Signature renders the member shape without the declaring type:
// "Return Name<Args>(P1,P2)".
func (m *MethodRef) Signature() string {
	if m == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(m.Return.FullName())
	sb.WriteByte(' ')
	sb.WriteString(m.Name)
	if len(m.GenericArgs) > 0 {
		sb.WriteByte('<')
		for i, a := range m.GenericArgs {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(a.FullName())
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.FullName())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (m *MethodRef) String() string {
	if m == nil {
		return "<nil>"
	}
	return m.DeclaringType.FullName() + "::" + m.Signature()
}

// IsCtor reports whether m names a constructor.
func (m *MethodRef) IsCtor() bool {
	return m != nil && m.Name == CtorName
}

// Copy returns a copy with fresh slot slices; element TypeRefs are shared.
func (m *MethodRef) Copy() *MethodRef {
	if m == nil {
		return nil
	}
	out := *m
	out.Params = slices.Clone(m.Params)
	out.GenericArgs = slices.Clone(m.GenericArgs)
	return &out
}

// SameShape reports whether two method references have the same name,
// instance flag, return and parameter types, ignoring the declaring type.
func SameShape(a, b *MethodRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name &&
		a.HasThis == b.HasThis &&
		Equal(a.Return, b.Return) &&
		EqualAll(a.Params, b.Params) &&
		len(a.GenericArgs) == len(b.GenericArgs)
}
