package rewrite

import (
	"errors"
	"fmt"
)

var (
	// ErrDefect matches every *DefectError via errors.Is.
	ErrDefect = errors.New("rewrite defect")
	// ErrRewriteLoop means a site kept changing past the iteration cap.
	ErrRewriteLoop = errors.New("site did not settle")
	// ErrOpcodeChanged means a rule replaced an instruction with a
	// different opcode or changed the instruction count.
	ErrOpcodeChanged = errors.New("instruction shape changed")
	// ErrInvalidInput is returned for modules that are malformed before
	// any rule ran.
	ErrInvalidInput = errors.New("module is malformed")
)

// DefectKind classifies programming errors found during a pass.
type DefectKind uint8

const (
	DefectRuleFailed DefectKind = iota + 1
	DefectBadImport
	DefectFacadeConstructed
	DefectRewriteLoop
	DefectOpcodeChanged
	DefectInvalidModule
)

func (k DefectKind) String() string {
	switch k {
	case DefectRuleFailed:
		return "rule-failed"
	case DefectBadImport:
		return "bad-import"
	case DefectFacadeConstructed:
		return "facade-constructed"
	case DefectRewriteLoop:
		return "rewrite-loop"
	case DefectOpcodeChanged:
		return "opcode-changed"
	case DefectInvalidModule:
		return "invalid-module"
	default:
		return fmt.Sprintf("DefectKind(%d)", k)
	}
}

// DefectError aborts a rewrite pass. It signals a rule authored incorrectly
// against the current host, never a property of the mod, and is never
// folded into an Outcome.
type DefectError struct {
	Kind   DefectKind
	Module string
	Rule   string
	Site   string
	Err    error
}

func (e *DefectError) Error() string {
	msg := "defect " + e.Kind.String()
	if e.Module != "" {
		msg += " in module " + e.Module
	}
	if e.Rule != "" {
		msg += " (rule " + e.Rule + ")"
	}
	if e.Site != "" {
		msg += " at " + e.Site
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DefectError) Unwrap() error { return e.Err }

// Is makes every DefectError match ErrDefect.
func (e *DefectError) Is(target error) bool {
	return target == ErrDefect
}

// AsDefect extracts a DefectError from err.
func AsDefect(err error) (*DefectError, bool) {
	var d *DefectError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
