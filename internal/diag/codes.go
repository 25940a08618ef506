package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// rewrites applied
	RewInfo        Code = 1000
	RewSignature   Code = 1001
	RewInstruction Code = 1002

	// compatibility findings
	CmpInfo         Code = 2000
	CmpWarning      Code = 2001
	CmpFatal        Code = 2002
	CmpAccessDenied Code = 2003

	// defects: rules authored wrongly against the host
	DefInfo              Code = 3000
	DefRuleFailed        Code = 3001
	DefBadImport         Code = 3002
	DefFacadeConstructed Code = 3003
	DefRewriteLoop       Code = 3004
	DefOpcodeChanged     Code = 3005
	DefInvalidModule     Code = 3006

	// input problems
	InpInfo          Code = 4000
	InpInvalidModule Code = 4001
	InpRuleTable     Code = 4002
	InpModuleFile    Code = 4003
)

var codeDescription = map[Code]string{
	UnknownCode:          "unknown problem",
	RewInfo:              "rewrite",
	RewSignature:         "signature reference rewritten",
	RewInstruction:       "instruction operand rewritten",
	CmpInfo:              "compatibility",
	CmpWarning:           "incompatible but tolerated",
	CmpFatal:             "incompatible, module must not load",
	CmpAccessDenied:      "access to a reserved host namespace",
	DefInfo:              "defect",
	DefRuleFailed:        "rule failed",
	DefBadImport:         "replacement could not be imported",
	DefFacadeConstructed: "facade constructed",
	DefRewriteLoop:       "site did not settle",
	DefOpcodeChanged:     "rule changed an opcode",
	DefInvalidModule:     "rewritten module is malformed",
	InpInfo:              "input",
	InpInvalidModule:     "input module is malformed",
	InpRuleTable:         "rule table rejected",
	InpModuleFile:        "module file unreadable",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("REW%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("CMP%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("DEF%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("INP%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
