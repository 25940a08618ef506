package meta

import (
	"fmt"
	"strings"
)

// RefKind enumerates the shapes a type reference can take.
type RefKind uint8

const (
	RefInvalid RefKind = iota
	RefNamed
	RefGenericInst
	RefGenericParam
	RefArray
	RefByRef
)

func (k RefKind) String() string {
	switch k {
	case RefInvalid:
		return "invalid"
	case RefNamed:
		return "named"
	case RefGenericInst:
		return "generic-inst"
	case RefGenericParam:
		return "generic-param"
	case RefArray:
		return "array"
	case RefByRef:
		return "byref"
	default:
		return fmt.Sprintf("RefKind(%d)", k)
	}
}

// Ref is implemented by every reference shape a matcher can inspect:
// *TypeRef, *FieldRef and *MethodRef.
type Ref interface {
	FullName() string
	refNode()
}

// TypeRef identifies a type by name. Generic instantiations carry the
// generic definition's name plus ordered arguments; placeholders point at
// their GenericParam; arrays and byrefs wrap an element type.
type TypeRef struct {
	Kind      RefKind
	Scope     string // declaring module scope, e.g. "Host" or "System"
	Namespace string
	Name      string
	Args      []*TypeRef    // RefGenericInst
	Elem      *TypeRef      // RefArray, RefByRef
	Param     *GenericParam // RefGenericParam
}

func (*TypeRef) refNode() {}

// GenericParam is a placeholder bound to a declaring method or type.
type GenericParam struct {
	Name        string
	Position    int
	Owner       string
	Constraints []*TypeRef
}

// Named builds a plain type reference from a dotted full name.
func Named(scope, fullName string) *TypeRef {
	ns, name := SplitFullName(fullName)
	return &TypeRef{Kind: RefNamed, Scope: scope, Namespace: ns, Name: name}
}

// Generic instantiates def with args. def must be a named reference; its
// scope and name are copied, def itself is not retained.
func Generic(def *TypeRef, args ...*TypeRef) *TypeRef {
	return &TypeRef{
		Kind:      RefGenericInst,
		Scope:     def.Scope,
		Namespace: def.Namespace,
		Name:      def.Name,
		Args:      args,
	}
}

// ParamRef returns a placeholder reference for p.
func ParamRef(p *GenericParam) *TypeRef {
	return &TypeRef{Kind: RefGenericParam, Name: p.Name, Param: p}
}

// ArrayOf returns a single-dimension array of elem.
func ArrayOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: RefArray, Elem: elem}
}

// ByRefOf returns a managed pointer to elem.
func ByRefOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: RefByRef, Elem: elem}
}

// SplitFullName splits "A.B.C" into namespace "A.B" and name "C".
func SplitFullName(fullName string) (string, string) {
	idx := strings.LastIndexByte(fullName, '.')
	if idx < 0 {
		return "", fullName
	}
	return fullName[:idx], fullName[idx+1:]
}

// DefinitionName is the dotted name without generic arguments. It is empty
// for placeholders, arrays and byrefs.
func (t *TypeRef) DefinitionName() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case RefNamed, RefGenericInst:
		if t.Namespace == "" {
			return t.Name
		}
		return t.Namespace + "." + t.Name
	default:
		return ""
	}
}

// FullName renders the reference including generic arguments.
func (t *TypeRef) FullName() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	t.writeName(&sb, 0)
	return sb.String()
}

// maxNameDepth bounds rendering of malformed self-referencing graphs.
const maxNameDepth = 64

func (t *TypeRef) writeName(sb *strings.Builder, depth int) {
	if t == nil {
		sb.WriteString("<nil>")
		return
	}
	if depth > maxNameDepth {
		sb.WriteString("...")
		return
	}
	switch t.Kind {
	case RefNamed:
		sb.WriteString(t.DefinitionName())
	case RefGenericInst:
		sb.WriteString(t.DefinitionName())
		sb.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			a.writeName(sb, depth+1)
		}
		sb.WriteByte('>')
	case RefGenericParam:
		sb.WriteString(t.Name)
	case RefArray:
		t.Elem.writeName(sb, depth+1)
		sb.WriteString("[]")
	case RefByRef:
		t.Elem.writeName(sb, depth+1)
		sb.WriteByte('&')
	default:
		sb.WriteString("<invalid>")
	}
}

func (t *TypeRef) String() string {
	return t.FullName()
}

// Equal reports structural equality: same kind, same full names and
// pairwise-equal generic arguments. Scope does not take part.
func Equal(a, b *TypeRef) bool {
	return equalDepth(a, b, 0)
}

func equalDepth(a, b *TypeRef, depth int) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind || depth > maxNameDepth {
		return false
	}
	switch a.Kind {
	case RefNamed:
		return a.Namespace == b.Namespace && a.Name == b.Name
	case RefGenericInst:
		if a.Namespace != b.Namespace || a.Name != b.Name || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !equalDepth(a.Args[i], b.Args[i], depth+1) {
				return false
			}
		}
		return true
	case RefGenericParam:
		if a.Param == nil || b.Param == nil {
			return a.Name == b.Name
		}
		return a.Param.Name == b.Param.Name && a.Param.Position == b.Param.Position && a.Param.Owner == b.Param.Owner
	case RefArray, RefByRef:
		return equalDepth(a.Elem, b.Elem, depth+1)
	}
	return false
}

// EqualAll compares two reference lists pairwise.
func EqualAll(a, b []*TypeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
