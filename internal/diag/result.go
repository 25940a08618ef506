package diag

import (
	"errors"

	"modpatch/internal/guard"
	"modpatch/internal/rewrite"
)

// FromResult reports every site of res that did something. Unchanged
// sites are skipped; Rewritten sites are reported only when verbose.
func FromResult(r Reporter, res *rewrite.ModuleResult, verbose bool) {
	for _, m := range res.Methods {
		for _, s := range m.Sites {
			switch s.Outcome {
			case rewrite.Unchanged:
				continue
			case rewrite.Rewritten:
				if !verbose {
					continue
				}
				code := RewSignature
				if s.Kind == rewrite.SiteInstruction {
					code = RewInstruction
				}
				msg := s.Original + " -> " + s.Replacement
				if s.Replacement == "" {
					msg = s.Original + " rewritten in place"
				}
				ReportInfo(r, code, res.Module, s.Site, msg).WithRule(s.Rule).Emit()
			case rewrite.Warning:
				ReportWarning(r, CmpWarning, res.Module, s.Site, message(s)).WithRule(s.Rule).Emit()
			case rewrite.Fatal:
				ReportError(r, CmpFatal, res.Module, s.Site, message(s)).WithRule(s.Rule).Emit()
			}
		}
	}
}

func message(s rewrite.SiteResult) string {
	if s.Message != "" {
		return s.Message
	}
	return s.Original + " is incompatible with this host"
}

// FromError reports a pass failure: a defect, malformed input or any other
// error.
func FromError(r Reporter, module string, err error) {
	if d, ok := rewrite.AsDefect(err); ok {
		b := ReportError(r, defectCode(d.Kind), module, d.Site, d.Error()).WithRule(d.Rule)
		b.WithNote("this is a rule authoring error, not a problem with the mod").Emit()
		return
	}
	code := UnknownCode
	if errors.Is(err, rewrite.ErrInvalidInput) {
		code = InpInvalidModule
	}
	ReportError(r, code, module, "", err.Error()).Emit()
}

// FromDenials reports access guard denials.
func FromDenials(r Reporter, module string, errs []error) {
	for _, err := range errs {
		var denied *guard.AccessDeniedError
		if errors.As(err, &denied) {
			ReportError(r, CmpAccessDenied, module, denied.Member, err.Error()).Emit()
			continue
		}
		ReportError(r, UnknownCode, module, "", err.Error()).Emit()
	}
}

func defectCode(k rewrite.DefectKind) Code {
	switch k {
	case rewrite.DefectRuleFailed:
		return DefRuleFailed
	case rewrite.DefectBadImport:
		return DefBadImport
	case rewrite.DefectFacadeConstructed:
		return DefFacadeConstructed
	case rewrite.DefectRewriteLoop:
		return DefRewriteLoop
	case rewrite.DefectOpcodeChanged:
		return DefOpcodeChanged
	case rewrite.DefectInvalidModule:
		return DefInvalidModule
	default:
		return DefInfo
	}
}
