package facade

import (
	"fmt"
	"strings"

	"modpatch/internal/host"
	"modpatch/internal/meta"
)

// Builder assembles a facade for one host type.
type Builder struct {
	scope string
	name  string
	host  *meta.TypeRef
	shims []Shim
}

// NewBuilder starts a facade named fullName, published under scope, that
// stands in for the host type hostType.
func NewBuilder(scope, fullName string, hostType *meta.TypeRef) *Builder {
	return &Builder{scope: scope, name: fullName, host: hostType}
}

// Method re-declares old on the facade and forwards it to target. The
// declaring type of old is ignored.
func (b *Builder) Method(old, target *meta.MethodRef) *Builder {
	b.shims = append(b.shims, Shim{Old: old.Copy(), Target: target.Copy()})
	return b
}

// Build validates every shim against cat and produces the facade.
func (b *Builder) Build(cat *host.Catalog) (*Facade, error) {
	if b.host == nil {
		return nil, fmt.Errorf("facade %s: missing host type", b.name)
	}
	if !cat.ResolveType(b.host) {
		return nil, fmt.Errorf("facade %s: %w: host type %s", b.name, ErrUnresolvedTarget, b.host)
	}
	if b.host.Kind != meta.RefNamed {
		return nil, fmt.Errorf("facade %s: %w: %s", b.name, ErrGenericHost, b.host)
	}
	if def, _, ok := cat.Type(b.host.DefinitionName()); ok && len(def.GenericParams) > 0 {
		return nil, fmt.Errorf("facade %s: %w: %s", b.name, ErrGenericHost, b.host)
	}
	ns, name := meta.SplitFullName(b.name)
	def := &meta.TypeDef{
		Namespace: ns,
		Name:      name,
		BaseType:  b.host,
		Synthetic: true,
	}
	self := def.Ref(b.scope)
	def.Methods = append(def.Methods, trapCtor(b.name))

	shims := make([]Shim, 0, len(b.shims))
	for _, s := range b.shims {
		if s.Old.IsCtor() {
			return nil, fmt.Errorf("facade %s: constructors cannot be re-declared", b.name)
		}
		if s.Old.HasThis != s.Target.HasThis {
			return nil, fmt.Errorf("facade %s: %s and %s disagree on instance binding", b.name, s.Old.Signature(), s.Target)
		}
		if _, ok := cat.ResolveMethod(s.Target); !ok {
			return nil, fmt.Errorf("facade %s: %w: %s", b.name, ErrUnresolvedTarget, s.Target)
		}
		for _, prev := range shims {
			if meta.SameShape(prev.Old, s.Old) {
				return nil, fmt.Errorf("facade %s: shape %s declared twice", b.name, s.Old.Signature())
			}
		}
		s.Old.DeclaringType = self
		def.Methods = append(def.Methods, forwarder(s))
		shims = append(shims, s)
	}
	return &Facade{scope: b.scope, def: def, substitutes: b.host, shims: shims}, nil
}

// trapCtor is the facade constructor: it throws unconditionally.
func trapCtor(facadeName string) *meta.MethodDef {
	return &meta.MethodDef{
		Name:   meta.CtorName,
		Return: meta.Named("System", "System.Void"),
		Body: &meta.Body{Instructions: []*meta.Instruction{
			{Op: meta.OpLdStr, Operand: "facade " + facadeName + " cannot be constructed"},
			{Op: meta.OpNewObj, Operand: &meta.MethodRef{
				DeclaringType: meta.Named("System", "System.InvalidOperationException"),
				Name:          meta.CtorName,
				HasThis:       true,
				Return:        meta.Named("System", "System.Void"),
				Params:        []*meta.TypeRef{meta.Named("System", "System.String")},
			}},
			{Op: meta.OpThrow},
		}},
	}
}

// forwarder builds the body of a re-declared old shape: load every
// argument, adapt types, fill missing trailing arguments with defaults,
// call the current member and adapt the result.
func forwarder(s Shim) *meta.MethodDef {
	m := &meta.MethodDef{
		Name:   s.Old.Name,
		Static: !s.Old.HasThis,
		Return: s.Old.Return,
	}
	for i, p := range s.Old.Params {
		m.Params = append(m.Params, &meta.ParamDef{Name: fmt.Sprintf("p%d", i), Type: p})
	}

	var ins []*meta.Instruction
	emit := func(op meta.OpCode, operand any) {
		ins = append(ins, &meta.Instruction{Op: op, Operand: operand})
	}
	argBase := int64(0)
	if s.Old.HasThis {
		emit(meta.OpLdArg, int64(0))
		argBase = 1
	}
	for i, want := range s.Target.Params {
		if i < len(s.Old.Params) {
			emit(meta.OpLdArg, argBase+int64(i))
			if !meta.Equal(s.Old.Params[i], want) {
				emit(meta.OpCastClass, want)
			}
			continue
		}
		emitDefault(emit, want)
	}
	if s.Target.HasThis {
		emit(meta.OpCallVirt, s.Target)
	} else {
		emit(meta.OpCall, s.Target)
	}
	switch {
	case isVoid(s.Old.Return) && !isVoid(s.Target.Return):
		emit(meta.OpPop, nil)
	case !isVoid(s.Old.Return) && !meta.Equal(s.Old.Return, s.Target.Return):
		emit(meta.OpCastClass, s.Old.Return)
	}
	emit(meta.OpRet, nil)
	m.Body = &meta.Body{Instructions: ins}
	return m
}

func emitDefault(emit func(meta.OpCode, any), t *meta.TypeRef) {
	switch t.DefinitionName() {
	case "System.Single", "System.Double":
		emit(meta.OpLdc, float64(0))
	case "System.Boolean", "System.Byte", "System.Int16", "System.Int32", "System.Int64",
		"System.UInt16", "System.UInt32", "System.UInt64", "System.Char":
		emit(meta.OpLdc, int64(0))
	default:
		emit(meta.OpLdNull, nil)
	}
}

func isVoid(t *meta.TypeRef) bool {
	return t == nil || strings.EqualFold(t.DefinitionName(), "System.Void")
}
