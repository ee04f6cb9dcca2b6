package vm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/parexlabs/parex/common"
	"github.com/parexlabs/parex/core/state"
)

type memReader struct {
	data map[state.VersionKey][]byte
}

func (r *memReader) ReadLocation(key state.VersionKey) ([]byte, error) {
	return r.data[key], nil
}

var (
	selfAddr   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	callerAddr = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

// asm builds encoded program bytes instruction by instruction.
type asm []byte

func (a asm) op(o OpCode) asm {
	return append(a, byte(o))
}

func (a asm) push(v uint64) asm {
	return a.pushWord(uint256.NewInt(v))
}

func (a asm) pushWord(v *uint256.Int) asm {
	word := v.Bytes32()
	return append(append(a, byte(PUSH)), word[:]...)
}

func newTestTracker(data map[state.VersionKey][]byte) *state.Tracker {
	bs := state.NewBlockState(&memReader{data: data})
	return state.NewTracker(bs, state.Version{TxIndex: 0})
}

func run(t *testing.T, code []byte, data map[state.VersionKey][]byte) ([]byte, *state.Tracker, error) {
	t.Helper()
	program, err := Decode(code)
	require.NoError(t, err)
	tracker := newTestTracker(data)
	in := NewInterpreter(tracker, selfAddr, callerAddr, 1000, false)
	out, runErr := in.Run(program)
	return out, tracker, runErr
}

func TestInterpreterArithmetic(t *testing.T) {
	code := asm{}.push(2).push(3).op(ADD).op(RETURN)
	out, _, err := run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5).Bytes(), out)

	code = asm{}.push(2).push(10).op(SUB).op(RETURN)
	out, _, err = run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(8).Bytes(), out)
}

func TestInterpreterComparisons(t *testing.T) {
	code := asm{}.push(5).push(3).op(LT).op(RETURN)
	out, _, err := run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1).Bytes(), out)

	code = asm{}.push(0).op(ISZERO).op(RETURN)
	out, _, err = run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1).Bytes(), out)
}

func TestInterpreterStorageRoundTrip(t *testing.T) {
	// SSTORE pops slot then value; SLOAD pops slot.
	code := asm{}.push(99).push(1).op(SSTORE).push(1).op(SLOAD).op(RETURN)
	out, tracker, err := run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(99).Bytes(), out)

	val, err := tracker.Storage(selfAddr, common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, uint64(99), val.Uint64())
}

func TestInterpreterBalanceAndTransfer(t *testing.T) {
	data := map[state.VersionKey][]byte{
		state.BalanceKey(selfAddr): uint256.NewInt(100).Bytes(),
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000000ee")

	// TRANSFER pops destination then amount.
	code := asm{}.push(30).pushWord(new(uint256.Int).SetBytes(to[:])).op(TRANSFER).op(STOP)

	_, tracker, err := run(t, code, data)
	require.NoError(t, err)

	bal, err := tracker.Balance(selfAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(70), bal.Uint64())
	bal, err = tracker.Balance(to)
	require.NoError(t, err)
	require.Equal(t, uint64(30), bal.Uint64())
}

func TestInterpreterTransferInsufficient(t *testing.T) {
	code := asm{}.push(30).push(0).op(TRANSFER).op(STOP)
	_, _, err := run(t, code, nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestInterpreterJumpTaken(t *testing.T) {
	// Layout by instruction offset:
	//   0: PUSH 1   (cond)
	//   1: PUSH 4   (dest)
	//   2: JUMPI
	//   3: PUSH 7   (skipped)
	//   4: JUMPDEST
	//   5: PUSH 9
	//   6: RETURN
	code := asm{}.push(1).push(4).op(JUMPI).push(7).op(JUMPDEST).push(9).op(RETURN)
	out, _, err := run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(9).Bytes(), out)
}

func TestInterpreterJumpFallthrough(t *testing.T) {
	code := asm{}.push(0).push(5).op(JUMPI).push(7).op(RETURN).op(JUMPDEST).op(STOP)
	out, _, err := run(t, code, nil)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(7).Bytes(), out)
}

func TestInterpreterInvalidJump(t *testing.T) {
	// Destination is not a JUMPDEST.
	code := asm{}.push(1).push(0).op(JUMPI).op(STOP)
	_, _, err := run(t, code, nil)
	require.ErrorIs(t, err, ErrInvalidJump)
}

func TestInterpreterStackUnderflow(t *testing.T) {
	code := asm{}.op(ADD)
	_, _, err := run(t, code, nil)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

func TestInterpreterStepLimit(t *testing.T) {
	// Infinite loop: JUMPDEST; PUSH 1; PUSH 0; JUMPI.
	code := asm{}.op(JUMPDEST).push(1).push(0).op(JUMPI)
	program, err := Decode(code)
	require.NoError(t, err)
	in := NewInterpreter(newTestTracker(nil), selfAddr, callerAddr, 50, false)
	_, runErr := in.Run(program)
	require.ErrorIs(t, runErr, ErrStepLimitExceeded)
	require.Equal(t, uint64(50), in.StepsUsed())
}

func TestInterpreterRevert(t *testing.T) {
	code := asm{}.op(REVERT)
	_, _, err := run(t, code, nil)
	require.ErrorIs(t, err, ErrExecutionReverted)
}

func TestDecodeInvalidCode(t *testing.T) {
	_, err := Decode([]byte{0xef})
	require.ErrorIs(t, err, ErrInvalidCode)

	// Truncated PUSH immediate.
	_, err = Decode([]byte{byte(PUSH), 0x01})
	require.ErrorIs(t, err, ErrInvalidCode)

	// Decode failures are memoized like successes.
	_, err = Decode([]byte{0xef})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestBranchTraceRecording(t *testing.T) {
	code := asm{}.push(1).push(4).op(JUMPI).push(7).op(JUMPDEST).push(0).push(9).op(JUMPI).op(STOP)
	program, err := Decode(code)
	require.NoError(t, err)

	in := NewInterpreter(newTestTracker(nil), selfAddr, callerAddr, 1000, true)
	_, runErr := in.Run(program)
	require.NoError(t, runErr)
	require.Equal(t, []byte{1, 0}, in.BranchTrace())
	require.NotZero(t, in.TraceLog().Len())
}
