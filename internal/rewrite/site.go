package rewrite

import (
	"fmt"

	"modpatch/internal/meta"
)

// SiteKind enumerates the structural places a reference can appear.
type SiteKind uint8

const (
	SiteBaseType SiteKind = iota + 1
	SiteInterface
	SiteFieldType
	SiteTypeConstraint
	SiteReturn
	SiteParam
	SiteMethodConstraint
	SiteLocal
	SiteInstruction
)

func (k SiteKind) String() string {
	switch k {
	case SiteBaseType:
		return "base type"
	case SiteInterface:
		return "interface"
	case SiteFieldType:
		return "field type"
	case SiteTypeConstraint:
		return "type generic constraint"
	case SiteReturn:
		return "return type"
	case SiteParam:
		return "parameter"
	case SiteMethodConstraint:
		return "method generic constraint"
	case SiteLocal:
		return "local"
	case SiteInstruction:
		return "instruction"
	default:
		return fmt.Sprintf("SiteKind(%d)", k)
	}
}

// TypeSite is a signature-level slot holding one type reference.
type TypeSite struct {
	Kind  SiteKind
	Owner string // type or method full name
	Index int    // parameter, local, interface or constraint index
	Label string // field or generic parameter name

	slot *(*meta.TypeRef)
}

func newTypeSite(kind SiteKind, owner string, index int, label string, slot **meta.TypeRef) *TypeSite {
	return &TypeSite{Kind: kind, Owner: owner, Index: index, Label: label, slot: slot}
}

// Ref returns the reference currently held by the slot.
func (s *TypeSite) Ref() *meta.TypeRef { return *s.slot }

// Set stores a new reference in the slot.
func (s *TypeSite) Set(t *meta.TypeRef) { *s.slot = t }

func (s *TypeSite) String() string {
	switch s.Kind {
	case SiteBaseType:
		return s.Owner + " base type"
	case SiteReturn:
		return s.Owner + " return type"
	case SiteFieldType:
		return fmt.Sprintf("%s field %s", s.Owner, s.Label)
	case SiteTypeConstraint, SiteMethodConstraint:
		return fmt.Sprintf("%s generic %s constraint %d", s.Owner, s.Label, s.Index)
	default:
		return fmt.Sprintf("%s %s %d", s.Owner, s.Kind, s.Index)
	}
}

// InstructionSite is one instruction of a method body. Rules may replace
// the operand; the opcode must stay as it is.
type InstructionSite struct {
	Method      string
	Index       int
	Instruction *meta.Instruction
}

// Replace swaps the operand, keeping the opcode.
func (s *InstructionSite) Replace(operand any) {
	s.Instruction.Operand = operand
}

func (s *InstructionSite) String() string {
	return fmt.Sprintf("%s IL_%04x %s", s.Method, s.Index, s.Instruction.Op)
}
