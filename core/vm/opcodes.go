package vm

import "fmt"

// OpCode is a single byte representing an instruction. The numbering follows
// the EVM where an equivalent instruction exists.
type OpCode byte

const (
	STOP OpCode = 0x00
	ADD  OpCode = 0x01
	SUB  OpCode = 0x03

	LT     OpCode = 0x10
	GT     OpCode = 0x11
	EQ     OpCode = 0x14
	ISZERO OpCode = 0x15

	ADDRESS OpCode = 0x30
	BALANCE OpCode = 0x31
	CALLER  OpCode = 0x33

	SLOAD    OpCode = 0x54
	SSTORE   OpCode = 0x55
	JUMPI    OpCode = 0x57
	JUMPDEST OpCode = 0x5b

	PUSH OpCode = 0x60

	TRANSFER OpCode = 0xf0
	RETURN   OpCode = 0xf3
	REVERT   OpCode = 0xfd
)

type opInfo struct {
	name      string
	pops      int
	pushes    int
	immediate bool
}

var opTable = map[OpCode]opInfo{
	STOP:     {"STOP", 0, 0, false},
	ADD:      {"ADD", 2, 1, false},
	SUB:      {"SUB", 2, 1, false},
	LT:       {"LT", 2, 1, false},
	GT:       {"GT", 2, 1, false},
	EQ:       {"EQ", 2, 1, false},
	ISZERO:   {"ISZERO", 1, 1, false},
	ADDRESS:  {"ADDRESS", 0, 1, false},
	BALANCE:  {"BALANCE", 1, 1, false},
	CALLER:   {"CALLER", 0, 1, false},
	SLOAD:    {"SLOAD", 1, 1, false},
	SSTORE:   {"SSTORE", 2, 0, false},
	JUMPI:    {"JUMPI", 2, 0, false},
	JUMPDEST: {"JUMPDEST", 0, 0, false},
	PUSH:     {"PUSH", 0, 1, true},
	TRANSFER: {"TRANSFER", 2, 0, false},
	RETURN:   {"RETURN", 1, 0, false},
	REVERT:   {"REVERT", 0, 0, false},
}

// Valid reports whether op is a defined instruction.
func (op OpCode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// Pops returns how many stack items op consumes.
func (op OpCode) Pops() int { return opTable[op].pops }

// Pushes returns how many stack items op produces.
func (op OpCode) Pushes() int { return opTable[op].pushes }

// HasImmediate reports whether op is followed by a 32 byte immediate operand
// in the encoded program.
func (op OpCode) HasImmediate() bool { return opTable[op].immediate }

func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("opcode %#x not defined", byte(op))
}
