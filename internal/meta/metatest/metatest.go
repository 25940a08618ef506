// Package metatest builds small module graphs for tests.
package metatest

import (
	"strconv"

	"modpatch/internal/meta"
)

// System is the scope of runtime-provided types.
const System = "System"

// Void returns a fresh reference to System.Void.
func Void() *meta.TypeRef { return meta.Named(System, "System.Void") }

// Int returns a fresh reference to System.Int32.
func Int() *meta.TypeRef { return meta.Named(System, "System.Int32") }

// Object returns a fresh reference to System.Object.
func Object() *meta.TypeRef { return meta.Named(System, "System.Object") }

// Module assembles a module from type definitions.
func Module(name string, types ...*meta.TypeDef) *meta.Module {
	m := meta.NewModule(name)
	m.Types = append(m.Types, types...)
	return m
}

// Class declares a type with the given methods and System.Object as base.
func Class(fullName string, methods ...*meta.MethodDef) *meta.TypeDef {
	ns, name := meta.SplitFullName(fullName)
	return &meta.TypeDef{
		Namespace: ns,
		Name:      name,
		BaseType:  Object(),
		Methods:   methods,
	}
}

// Method declares an instance method with positional parameters named a0..aN
// and an empty body.
func Method(name string, ret *meta.TypeRef, params ...*meta.TypeRef) *meta.MethodDef {
	m := &meta.MethodDef{Name: name, Return: ret, Body: &meta.Body{}}
	for i, p := range params {
		m.Params = append(m.Params, &meta.ParamDef{Name: "a" + strconv.Itoa(i), Type: p})
	}
	return m
}

// WithBody appends instructions to m's body and returns m.
func WithBody(m *meta.MethodDef, ins ...*meta.Instruction) *meta.MethodDef {
	if m.Body == nil {
		m.Body = &meta.Body{}
	}
	m.Body.Instructions = append(m.Body.Instructions, ins...)
	return m
}

// WithLocals appends local slots typed as given.
func WithLocals(m *meta.MethodDef, types ...*meta.TypeRef) *meta.MethodDef {
	if m.Body == nil {
		m.Body = &meta.Body{}
	}
	for _, t := range types {
		m.Body.Locals = append(m.Body.Locals, &meta.Local{Index: len(m.Body.Locals), Type: t})
	}
	return m
}

// Ins builds one instruction.
func Ins(op meta.OpCode, operand any) *meta.Instruction {
	return &meta.Instruction{Op: op, Operand: operand}
}

// Call builds a call instruction against decl::name.
func Call(decl *meta.TypeRef, name string, ret *meta.TypeRef, params ...*meta.TypeRef) *meta.Instruction {
	return Ins(meta.OpCall, &meta.MethodRef{
		DeclaringType: decl,
		Name:          name,
		HasThis:       true,
		Return:        ret,
		Params:        params,
	})
}

// LoadField builds an ldfld instruction against decl::name.
func LoadField(decl *meta.TypeRef, name string, typ *meta.TypeRef) *meta.Instruction {
	return Ins(meta.OpLdFld, &meta.FieldRef{DeclaringType: decl, Name: name, Type: typ})
}

// Param declares a method generic parameter at position pos.
func Param(owner, name string, pos int, constraints ...*meta.TypeRef) *meta.GenericParam {
	return &meta.GenericParam{Name: name, Position: pos, Owner: owner, Constraints: constraints}
}
