package meta

import "fmt"

// OperandKind describes what an opcode expects as its operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandValue
	OperandType
	OperandField
	OperandMethod
	OperandToken // any reference
)

func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandValue:
		return "value"
	case OperandType:
		return "type"
	case OperandField:
		return "field"
	case OperandMethod:
		return "method"
	case OperandToken:
		return "token"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// OpCode is an instruction opcode.
type OpCode uint8

const (
	OpNop OpCode = iota
	OpLdArg
	OpStArg
	OpLdLoc
	OpStLoc
	OpLdc
	OpLdStr
	OpLdNull
	OpLdFld
	OpLdFldA
	OpStFld
	OpLdSFld
	OpStSFld
	OpCall
	OpCallVirt
	OpNewObj
	OpLdFtn
	OpNewArr
	OpBox
	OpUnbox
	OpCastClass
	OpIsInst
	OpInitObj
	OpLdToken
	OpPop
	OpDup
	OpBr
	OpBrTrue
	OpBrFalse
	OpRet
	OpThrow

	opCount
)

type opInfo struct {
	name    string
	operand OperandKind
}

var opTable = [opCount]opInfo{
	OpNop:       {"nop", OperandNone},
	OpLdArg:     {"ldarg", OperandValue},
	OpStArg:     {"starg", OperandValue},
	OpLdLoc:     {"ldloc", OperandValue},
	OpStLoc:     {"stloc", OperandValue},
	OpLdc:       {"ldc", OperandValue},
	OpLdStr:     {"ldstr", OperandValue},
	OpLdNull:    {"ldnull", OperandNone},
	OpLdFld:     {"ldfld", OperandField},
	OpLdFldA:    {"ldflda", OperandField},
	OpStFld:     {"stfld", OperandField},
	OpLdSFld:    {"ldsfld", OperandField},
	OpStSFld:    {"stsfld", OperandField},
	OpCall:      {"call", OperandMethod},
	OpCallVirt:  {"callvirt", OperandMethod},
	OpNewObj:    {"newobj", OperandMethod},
	OpLdFtn:     {"ldftn", OperandMethod},
	OpNewArr:    {"newarr", OperandType},
	OpBox:       {"box", OperandType},
	OpUnbox:     {"unbox", OperandType},
	OpCastClass: {"castclass", OperandType},
	OpIsInst:    {"isinst", OperandType},
	OpInitObj:   {"initobj", OperandType},
	OpLdToken:   {"ldtoken", OperandToken},
	OpPop:       {"pop", OperandNone},
	OpDup:       {"dup", OperandNone},
	OpBr:        {"br", OperandValue},
	OpBrTrue:    {"brtrue", OperandValue},
	OpBrFalse:   {"brfalse", OperandValue},
	OpRet:       {"ret", OperandNone},
	OpThrow:     {"throw", OperandNone},
}

// Valid reports whether op is a known opcode.
func (op OpCode) Valid() bool {
	return op < opCount
}

func (op OpCode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OpCode(%d)", op)
	}
	return opTable[op].name
}

// Operand returns the operand kind op expects.
func (op OpCode) Operand() OperandKind {
	if !op.Valid() {
		return OperandNone
	}
	return opTable[op].operand
}

// ParseOpCode maps a mnemonic back to its opcode.
func ParseOpCode(name string) (OpCode, bool) {
	for i := range opTable {
		if opTable[i].name == name {
			return OpCode(i), true
		}
	}
	return OpNop, false
}
