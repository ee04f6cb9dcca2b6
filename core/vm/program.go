package vm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/crypto"
)

// Instruction is one decoded program entry.
type Instruction struct {
	Op OpCode
	// Arg is the immediate operand of PUSH instructions, nil otherwise.
	Arg *uint256.Int
	// Pos is the instruction's offset within the decoded program; jump
	// destinations are expressed in these offsets.
	Pos int
}

// Program is the decoded form of a transaction's code.
type Program struct {
	Code         []Instruction
	Digest       common.Hash
	jumpdests    map[int]struct{}
	decodeErrPos int
}

// ValidJumpdest reports whether pos is a JUMPDEST instruction offset.
func (p *Program) ValidJumpdest(pos int) bool {
	_, ok := p.jumpdests[pos]
	return ok
}

// The number of recently decoded programs memoized across blocks.
const programCacheCapacity = 1024

var programCache *lru.Cache[common.Hash, *Program]

func init() {
	var err error
	programCache, err = lru.New[common.Hash, *Program](programCacheCapacity)
	if err != nil {
		panic("error creating program decode cache")
	}
}

// Decode parses encoded program bytes, memoizing by code digest. A decode
// failure is a property of the code itself and therefore also memoized: the
// same invalid code faults identically on every attempt.
func Decode(code []byte) (*Program, error) {
	digest := crypto.Keccak256Hash(code)
	if p, ok := programCache.Get(digest); ok {
		return p, p.decodeErr()
	}

	p := &Program{Digest: digest, jumpdests: map[int]struct{}{}, decodeErrPos: -1}
	for i := 0; i < len(code); {
		op := OpCode(code[i])
		if !op.Valid() {
			p.decodeErrPos = i
			break
		}
		ins := Instruction{Op: op, Pos: len(p.Code)}
		i++
		if op.HasImmediate() {
			if i+32 > len(code) {
				p.decodeErrPos = i
				break
			}
			ins.Arg = new(uint256.Int).SetBytes(code[i : i+32])
			i += 32
		}
		if op == JUMPDEST {
			p.jumpdests[ins.Pos] = struct{}{}
		}
		p.Code = append(p.Code, ins)
	}
	programCache.Add(digest, p)
	return p, p.decodeErr()
}

func (p *Program) decodeErr() error {
	if p.decodeErrPos < 0 {
		return nil
	}
	return fmt.Errorf("%w: byte offset %d", ErrInvalidCode, p.decodeErrPos)
}
