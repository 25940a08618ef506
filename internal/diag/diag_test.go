package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"modpatch/internal/guard"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

func sampleResult() *rewrite.ModuleResult {
	return &rewrite.ModuleResult{
		Module:  "Mod",
		Outcome: rewrite.Fatal,
		Methods: []rewrite.MethodResult{{
			Type:    "Mod.Main",
			Method:  "Run",
			Outcome: rewrite.Fatal,
			Sites: []rewrite.SiteResult{
				{Site: "Mod.Main::Run param 0", Kind: rewrite.SiteParam, Rule: "rename", Outcome: rewrite.Rewritten, Original: "Game.Old", Replacement: "Game.New"},
				{Site: "Mod.Main::Run IL_0001 call", Kind: rewrite.SiteInstruction, Rule: "find", Outcome: rewrite.Warning, Original: "Game.Slow::Go", Message: "slow"},
				{Site: "Mod.Main::Run IL_0003 call", Kind: rewrite.SiteInstruction, Rule: "missing", Outcome: rewrite.Fatal, Original: "Game.Gone::Go"},
			},
		}},
	}
}

func TestFromResult(t *testing.T) {
	bag := NewBag(10)
	FromResult(BagReporter{Bag: bag}, sampleResult(), false)
	if bag.Len() != 2 || !bag.HasErrors() || !bag.HasWarnings() {
		t.Fatalf("unexpected diagnostics %+v", bag.Items())
	}

	verbose := NewBag(10)
	FromResult(BagReporter{Bag: verbose}, sampleResult(), true)
	if verbose.Len() != 3 {
		t.Fatalf("verbose should include rewrites, got %d", verbose.Len())
	}
	first := verbose.Items()[0]
	if first.Code != RewSignature || first.Message != "Game.Old -> Game.New" || first.Rule != "rename" {
		t.Fatalf("unexpected rewrite diagnostic %+v", first)
	}
	if got := verbose.Items()[2].Message; !strings.Contains(got, "Game.Gone::Go") {
		t.Fatalf("fatal without message should name the original, got %q", got)
	}
}

func TestFromErrorClassifiesDefects(t *testing.T) {
	bag := NewBag(10)
	r := BagReporter{Bag: bag}
	FromError(r, "Mod", &rewrite.DefectError{Kind: rewrite.DefectRewriteLoop, Rule: "flip", Site: "x", Err: rewrite.ErrRewriteLoop})
	FromError(r, "Mod", fmt.Errorf("%w: nil module", rewrite.ErrInvalidInput))
	FromError(r, "Mod", errors.New("disk on fire"))

	codes := []Code{DefRewriteLoop, InpInvalidModule, UnknownCode}
	for i, want := range codes {
		if got := bag.Items()[i].Code; got != want {
			t.Fatalf("diagnostic %d code = %s, want %s", i, got.ID(), want.ID())
		}
	}
	if len(bag.Items()[0].Notes) != 1 {
		t.Fatalf("defects carry an authoring note")
	}
}

func TestFromDenials(t *testing.T) {
	g := guard.New("Host.Internal")
	err := g.Check("Mod", &meta.MethodRef{DeclaringType: meta.Named("Host", "Host.Internal.Saves"), Name: "Wipe"})
	bag := NewBag(4)
	FromDenials(BagReporter{Bag: bag}, "Mod", []error{err})
	if bag.Len() != 1 || bag.Items()[0].Code != CmpAccessDenied || bag.Items()[0].Site != "Host.Internal.Saves::Wipe" {
		t.Fatalf("unexpected denial diagnostics %+v", bag.Items())
	}
}

func TestBagLimitSortDedup(t *testing.T) {
	bag := NewBag(3)
	d := Diagnostic{Severity: SevWarning, Code: CmpWarning, Module: "B", Site: "s", Message: "m"}
	bag.Add(d)
	bag.Add(d)
	bag.Add(Diagnostic{Severity: SevError, Code: CmpFatal, Module: "A", Message: "x"})
	if bag.Add(Diagnostic{Module: "C"}) {
		t.Fatalf("limit must be enforced")
	}
	bag.Dedup()
	bag.Sort()
	if bag.Len() != 2 || bag.Items()[0].Module != "A" {
		t.Fatalf("unexpected order %+v", bag.Items())
	}
	if NewBag(1 << 20).Cap() != 65535 {
		t.Fatalf("oversized limit should clamp")
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	for range 3 {
		ReportWarning(r, CmpWarning, "Mod", "site", "same").Emit()
	}
	if bag.Len() != 1 {
		t.Fatalf("duplicates should be suppressed, got %d", bag.Len())
	}
}

func TestCodeAndLineRendering(t *testing.T) {
	d := Diagnostic{Severity: SevError, Code: CmpFatal, Module: "Mod", Site: "Mod.Main::Run", Message: "gone", Rule: "missing"}
	if got := d.Line(); got != "ERROR CMP2002 Mod: Mod.Main::Run: gone [missing]" {
		t.Fatalf("line = %q", got)
	}
	if DefOpcodeChanged.ID() != "DEF3005" || Code(9999).ID() != "E0000" {
		t.Fatalf("unexpected ids")
	}
}
