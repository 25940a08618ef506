package modfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"modpatch/internal/meta"
	mt "modpatch/internal/meta/metatest"
)

func sampleModule() *meta.Module {
	old := meta.Named("Host", "Game.OldType")
	p := mt.Param("Mod.Main::Use", "T", 0)
	p.Constraints = []*meta.TypeRef{meta.Generic(meta.Named("System", "System.IComparable"), meta.ParamRef(p))}

	use := mt.Method("Use", mt.Void(), meta.ParamRef(p), old)
	use.GenericParams = []*meta.GenericParam{p}
	mt.WithLocals(use, old, meta.ArrayOf(mt.Int()))
	mt.WithBody(use,
		mt.Ins(meta.OpLdStr, "hello"),
		mt.Ins(meta.OpLdc, int64(-7)),
		mt.Ins(meta.OpLdc, 2.5),
		mt.Call(old, "Draw", mt.Void(), old),
		mt.LoadField(old, "count", mt.Int()),
		mt.Ins(meta.OpRet, nil),
	)
	main := mt.Class("Mod.Main", use)
	main.Fields = []*meta.FieldDef{{Name: "cache", Type: old, Static: true}}
	main.Nested = []*meta.TypeDef{mt.Class("Mod.Main.Inner")}
	m := mt.Module("Mod", main)
	m.Platform = "windows"
	m.Scopes = []string{"Host", "System"}
	return m
}

func roundTrip(t *testing.T, m *meta.Module) *meta.Module {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte(Magic)) {
		t.Fatalf("missing magic")
	}
	out, err := Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestRoundTripPreservesGraph(t *testing.T) {
	m := sampleModule()
	out := roundTrip(t, m)
	if got, want := meta.Dump(out), meta.Dump(m); got != want {
		t.Fatalf("dump mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
	if err := meta.Validate(out); err != nil {
		t.Fatalf("decoded module invalid: %v", err)
	}

	use := out.Types[0].Methods[0]
	if use.Params[1].Type != out.Types[0].Fields[0].Type {
		t.Fatalf("shared reference was duplicated")
	}
	p := use.GenericParams[0]
	if use.Params[0].Type.Param != p || p.Constraints[0].Args[0].Param != p {
		t.Fatalf("generic parameter links were not restored")
	}
	if v, ok := use.Body.Instructions[1].Operand.(int64); !ok || v != -7 {
		t.Fatalf("integer operand = %#v", use.Body.Instructions[1].Operand)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "mod.mpch")
	m := sampleModule()
	if err := Save(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Dump(out) != meta.Dump(m) {
		t.Fatalf("file round trip changed the module")
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestSumIsStable(t *testing.T) {
	a, err := Sum(sampleModule())
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	b, _ := Sum(meta.Clone(sampleModule()))
	if a != b {
		t.Fatalf("equal graphs must hash equally")
	}
	changed := sampleModule()
	changed.Types[0].Name = "Other"
	c, _ := Sum(changed)
	if a == c {
		t.Fatalf("different graphs should hash differently")
	}
}

func encodeRaw(t *testing.T, p *payload) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(Magic)
	if err := msgpack.NewEncoder(&buf).Encode(p); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &buf
}

func TestReadRejects(t *testing.T) {
	cases := []struct {
		name string
		data *bytes.Buffer
		want error
	}{
		{"empty", bytes.NewBuffer(nil), ErrBadMagic},
		{"wrong magic", bytes.NewBufferString("ELF\x00rest"), ErrBadMagic},
		{"truncated", bytes.NewBufferString(Magic + "\x85"), ErrCorrupt},
		{"schema", encodeRaw(t, &payload{Schema: SchemaVersion + 1}), ErrSchema},
		{"dangling index", encodeRaw(t, &payload{
			Schema: SchemaVersion,
			Types:  []typeDefDTO{{Name: "T", Base: 9}},
		}), ErrCorrupt},
		{"bad kind", encodeRaw(t, &payload{
			Schema: SchemaVersion,
			Refs:   []typeRefDTO{{Kind: 200, Name: "X"}},
		}), ErrCorrupt},
		{"bad opcode", encodeRaw(t, &payload{
			Schema: SchemaVersion,
			Types: []typeDefDTO{{Name: "T", Methods: []methodDefDTO{{
				Name: "M", HasBody: true, Code: []instructionDTO{{Op: 255}},
			}}}},
		}), ErrCorrupt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Read(tc.data); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
