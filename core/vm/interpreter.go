package vm

import (
	"github.com/holiman/uint256"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/core/ssa"
	"github.com/parexlabs/parex/core/state"
)

// Interpreter runs a decoded program against a transaction tracker. One
// interpreter serves one call frame; it is not safe for concurrent use.
type Interpreter struct {
	tracker *state.Tracker
	self    common.Address
	caller  common.Address

	stepLimit uint64
	stepsUsed uint64

	trace    bool
	ops      []ssa.OpRecord
	branches []byte

	stack []uint256.Int
}

func NewInterpreter(tracker *state.Tracker, self, caller common.Address, stepLimit uint64, trace bool) *Interpreter {
	return &Interpreter{
		tracker:   tracker,
		self:      self,
		caller:    caller,
		stepLimit: stepLimit,
		trace:     trace,
		stack:     make([]uint256.Int, 0, 16),
	}
}

func (in *Interpreter) StepsUsed() uint64 { return in.stepsUsed }

// BranchTrace returns one byte per conditional jump taken during the run,
// 0x01 for taken and 0x00 for fallthrough. Only populated when tracing.
func (in *Interpreter) BranchTrace() []byte { return in.branches }

// TraceLog returns the recorded operation sequence. Only populated when
// tracing.
func (in *Interpreter) TraceLog() *ssa.Log {
	return &ssa.Log{Ops: in.ops, Branches: append([]byte(nil), in.branches...)}
}

func (in *Interpreter) push(v *uint256.Int) {
	in.stack = append(in.stack, *v)
}

func (in *Interpreter) pop() (uint256.Int, bool) {
	n := len(in.stack)
	if n == 0 {
		return uint256.Int{}, false
	}
	v := in.stack[n-1]
	in.stack = in.stack[:n-1]
	return v, true
}

func (in *Interpreter) record(op OpCode, arg common.Hash) {
	if !in.trace {
		return
	}
	in.ops = append(in.ops, ssa.OpRecord{
		Op:     byte(op),
		Arg:    arg,
		Pops:   uint8(op.Pops()),
		Pushes: uint8(op.Pushes()),
	})
}

// Run executes the program from its entry point. A non-nil error is either
// one of the fault sentinels in this package, which aborts the transaction
// only, or a wrapped state.ErrLedgerAccess, which is fatal to the block.
func (in *Interpreter) Run(p *Program) ([]byte, error) {
	var (
		pc     int
		instrs = p.Code
	)
	for pc < len(instrs) {
		if in.stepsUsed >= in.stepLimit {
			return nil, ErrStepLimitExceeded
		}
		in.stepsUsed++

		instr := instrs[pc]
		op := instr.Op
		if len(in.stack) < op.Pops() {
			return nil, ErrStackUnderflow
		}

		switch op {
		case STOP:
			in.record(op, common.Hash{})
			return nil, nil

		case PUSH:
			in.record(op, hashWord(instr.Arg))
			in.push(instr.Arg)

		case ADD:
			a, _ := in.pop()
			b, _ := in.pop()
			in.record(op, common.Hash{})
			a.Add(&a, &b)
			in.push(&a)

		case SUB:
			a, _ := in.pop()
			b, _ := in.pop()
			in.record(op, common.Hash{})
			a.Sub(&a, &b)
			in.push(&a)

		case LT:
			a, _ := in.pop()
			b, _ := in.pop()
			in.record(op, common.Hash{})
			in.push(boolWord(a.Lt(&b)))

		case GT:
			a, _ := in.pop()
			b, _ := in.pop()
			in.record(op, common.Hash{})
			in.push(boolWord(a.Gt(&b)))

		case EQ:
			a, _ := in.pop()
			b, _ := in.pop()
			in.record(op, common.Hash{})
			in.push(boolWord(a.Eq(&b)))

		case ISZERO:
			a, _ := in.pop()
			in.record(op, common.Hash{})
			in.push(boolWord(a.IsZero()))

		case ADDRESS:
			in.record(op, hashWord(addressWord(in.self)))
			in.push(addressWord(in.self))

		case CALLER:
			in.record(op, hashWord(addressWord(in.caller)))
			in.push(addressWord(in.caller))

		case BALANCE:
			a, _ := in.pop()
			addr := common.BytesToAddress(a.Bytes())
			in.record(op, hashWord(addressWord(addr)))
			bal, err := in.tracker.Balance(addr)
			if err != nil {
				return nil, err
			}
			in.push(bal)

		case SLOAD:
			slot, _ := in.pop()
			key := common.Hash(slot.Bytes32())
			in.record(op, key)
			val, err := in.tracker.Storage(in.self, key)
			if err != nil {
				return nil, err
			}
			in.push(val)

		case SSTORE:
			slot, _ := in.pop()
			val, _ := in.pop()
			key := common.Hash(slot.Bytes32())
			in.record(op, key)
			in.tracker.SetStorage(in.self, key, &val)

		case TRANSFER:
			toWord, _ := in.pop()
			amount, _ := in.pop()
			to := common.BytesToAddress(toWord.Bytes())
			in.record(op, hashWord(addressWord(to)))
			if err := in.transfer(to, &amount); err != nil {
				return nil, err
			}

		case JUMPI:
			dest, _ := in.pop()
			cond, _ := in.pop()
			taken := !cond.IsZero()
			in.record(op, hashWord(boolWord(taken)))
			if in.trace {
				if taken {
					in.branches = append(in.branches, 1)
				} else {
					in.branches = append(in.branches, 0)
				}
			}
			if taken {
				if !dest.IsUint64() || dest.Uint64() > uint64(len(instrs)) {
					return nil, ErrInvalidJump
				}
				target := int(dest.Uint64())
				if !p.ValidJumpdest(target) {
					return nil, ErrInvalidJump
				}
				pc = target
				continue
			}

		case JUMPDEST:
			in.record(op, common.Hash{})

		case RETURN:
			v, _ := in.pop()
			in.record(op, common.Hash{})
			return v.Bytes(), nil

		case REVERT:
			in.record(op, common.Hash{})
			return nil, ErrExecutionReverted

		default:
			return nil, ErrInvalidOpcode
		}
		pc++
	}
	return nil, nil
}

func (in *Interpreter) transfer(to common.Address, amount *uint256.Int) error {
	from, err := in.tracker.Balance(in.self)
	if err != nil {
		return err
	}
	if from.Lt(amount) {
		return ErrInsufficientFunds
	}
	var rem uint256.Int
	rem.Sub(from, amount)
	in.tracker.SetBalance(in.self, &rem)

	dst, err := in.tracker.Balance(to)
	if err != nil {
		return err
	}
	var sum uint256.Int
	sum.Add(dst, amount)
	in.tracker.SetBalance(to, &sum)
	return nil
}

func boolWord(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}

func addressWord(a common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(a[:])
}

func hashWord(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}
