package meta

import (
	"errors"
	"strings"
	"testing"
)

func sampleModule() *Module {
	item := Named("Host", "Game.Item")
	tp := &GenericParam{Name: "T", Position: 0, Owner: "Mod.Box::Put"}
	tp.Constraints = []*TypeRef{Generic(Named("System", "System.IComparable"), ParamRef(tp))}
	put := &MethodDef{
		Name:          "Put",
		Return:        Named("System", "System.Void"),
		Params:        []*ParamDef{{Name: "x", Type: item}},
		GenericParams: []*GenericParam{tp},
		Body: &Body{
			Locals: []*Local{{Index: 0, Type: item}},
			Instructions: []*Instruction{
				{Op: OpLdArg, Operand: int64(1)},
				{Op: OpCall, Operand: &MethodRef{DeclaringType: item, Name: "Use", HasThis: true, Return: Named("System", "System.Void")}},
				{Op: OpRet},
			},
		},
	}
	return &Module{
		Name:  "Mod",
		Types: []*TypeDef{{Namespace: "Mod", Name: "Box", BaseType: Named("System", "System.Object"), Methods: []*MethodDef{put}}},
	}
}

func TestClonePreservesStructureAndAliasing(t *testing.T) {
	m := sampleModule()
	if _, err := m.Import(Named("Host", "Game.Other")); err != nil {
		t.Fatalf("import: %v", err)
	}
	c := Clone(m)
	if Dump(c) != Dump(m) {
		t.Fatalf("clone differs:\n%s\nvs\n%s", Dump(c), Dump(m))
	}
	put := c.Types[0].Methods[0]
	if put.Params[0].Type != put.Body.Locals[0].Type {
		t.Fatalf("aliasing between param and local was lost")
	}
	if put.Params[0].Type == m.Types[0].Methods[0].Params[0].Type {
		t.Fatalf("clone shares references with the original")
	}
	tp := put.GenericParams[0]
	if tp.Constraints[0].Args[0].Param != tp {
		t.Fatalf("self-referencing constraint was not remapped")
	}
	h, _ := c.Import(Named("Host", "Game.Other"))
	if !c.IsImported(h) || c.ImportCount() != 1 {
		t.Fatalf("import table not carried over")
	}
}

func TestValidateAcceptsSample(t *testing.T) {
	if err := Validate(sampleModule()); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	m := sampleModule()
	put := m.Types[0].Methods[0]
	put.Body.Instructions[1].Operand = Named("Host", "Game.Item")
	put.GenericParams[0].Position = 3
	err := Validate(m)
	if !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("expected ErrInvalidModule, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"expects a method operand", "has position 3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidateRejectsCyclicReferences(t *testing.T) {
	m := sampleModule()
	put := m.Types[0].Methods[0]
	loop := Generic(Named("Host", "Game.Box"), Named("System", "System.Int32"))
	loop.Args[0] = ArrayOf(loop)
	put.Params[0].Type = loop
	err := Validate(m)
	if !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("expected ErrInvalidModule, got %v", err)
	}
	if !strings.Contains(err.Error(), "contains itself") {
		t.Fatalf("error %q does not name the cycle", err)
	}
}

func TestDumpIncludesScopes(t *testing.T) {
	out := Dump(sampleModule())
	if !strings.Contains(out, "[Host]Game.Item x") {
		t.Fatalf("dump lacks qualified parameter:\n%s", out)
	}
	if !strings.Contains(out, "generic 0 T : [System]System.IComparable<!T>") {
		t.Fatalf("dump lacks constraint:\n%s", out)
	}
}
