package world_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/engine/enginetest"
	"github.com/trailofbits/optik-go/optikerrors"
	"github.com/trailofbits/optik-go/world"
)

func newWorld() *world.EVMWorld {
	return world.NewEVMWorld(func() engine.Engine { return enginetest.New() })
}

type countingMonitor struct {
	world.BaseMonitor
	txCount int
	rtCount int
}

func (m *countingMonitor) OnTransaction(tx *world.AbstractTx) { m.txCount++ }
func (m *countingMonitor) OnNewRuntime(rt *world.EVMRuntime)  { m.rtCount++ }

func mustEngine(t *testing.T, eng engine.Engine) *enginetest.Engine {
	t.Helper()
	e, ok := eng.(*enginetest.Engine)
	require.True(t, ok, "expected enginetest.Engine, got %T", eng)
	return e
}

// S1: single transaction, normal exit.
func TestRun_SingleTransactionNormalExit(t *testing.T) {
	w := newWorld()
	mon := &countingMonitor{}
	require.NoError(t, w.AttachMonitor(mon))

	addr := common.HexToAddress("0x1000")
	_, err := w.Deploy("", addr, common.Address{}, nil, true)
	require.NoError(t, err)

	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: addr}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	stop, err := w.Run()
	require.NoError(t, err)
	require.Equal(t, engine.StopExit, stop)
	require.Empty(t, w.CallStack())
	require.EqualValues(t, 1, w.CurrentTxNum())
	require.Equal(t, 1, mon.txCount)
	require.Equal(t, 1, mon.rtCount)
}

// S3: revert restores the snapshot and pushes a zero onto the caller's
// stack.
func TestRun_CallReverts(t *testing.T) {
	w := newWorld()

	callerAddr := common.HexToAddress("0xA")
	calleeAddr := common.HexToAddress("0xB")
	_, err := w.Deploy("", callerAddr, common.Address{}, nil, true)
	require.NoError(t, err)
	_, err = w.Deploy("", calleeAddr, common.Address{}, nil, true)
	require.NoError(t, err)

	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: callerAddr}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	// Step 1: starts the top-level transaction on callerAddr, no Run() yet.
	stop, resumable, err := w.Step()
	_ = stop
	require.NoError(t, err)
	require.True(t, resumable)

	callerRunner, ok := w.Contract(callerAddr)
	require.True(t, ok)
	callerEng := mustEngine(t, callerRunner.CurrentRuntime().Eng)
	callerEng.SetOutgoingTransaction(&engine.Transaction{
		Type:      engine.TxCall,
		Recipient: calleeAddr,
		RetOffset: engine.ConstFromUint64(0),
		RetLen:    engine.ConstFromUint64(0),
	})
	callerEng.Script(&engine.Info{Stop: engine.StopNone})

	// Step 2: runs caller, observes the outgoing CALL, pushes callee's frame.
	stop, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, engine.StopNone, stop)
	require.Equal(t, []common.Address{callerAddr, calleeAddr}, w.CallStack())

	calleeRunner, ok := w.Contract(calleeAddr)
	require.True(t, ok)
	calleeEng := mustEngine(t, calleeRunner.CurrentRuntime().Eng)
	calleeEng.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResRevert})

	// Step 3: callee reverts; caller should see a 0 pushed on its stack.
	stop, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, engine.StopExit, stop)
	require.Equal(t, []common.Address{callerAddr}, w.CallStack())

	pushed := callerEng.StackValues()
	require.Len(t, pushed, 1)
	v, err := pushed[0].Resolve(nil)
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

// S4: CREATE success installs the constructor's return data as code and
// pushes the new address onto the caller's stack.
func TestRun_CreateSuccess(t *testing.T) {
	w := newWorld()

	deployerAddr := common.HexToAddress("0xA")
	_, err := w.Deploy("", deployerAddr, common.Address{}, nil, true)
	require.NoError(t, err)

	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: deployerAddr}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	stop, resumable, err := w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	_ = stop

	deployerRunner, _ := w.Contract(deployerAddr)
	deployerEng := mustEngine(t, deployerRunner.CurrentRuntime().Eng)
	deployerEng.SetOutgoingTransaction(&engine.Transaction{
		Type:   engine.TxCreate,
		Sender: engine.Const(new(uint256.Int).SetBytes(deployerAddr[:])),
		Data:   []byte{0xfe},
	})
	deployerEng.Script(&engine.Info{Stop: engine.StopNone})

	stop, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Len(t, w.CallStack(), 2)
	newAddr := w.CallStack()[1]

	newRunner, ok := w.Contract(newAddr)
	require.True(t, ok)
	require.False(t, newRunner.Initialized)

	newEng := mustEngine(t, newRunner.CurrentRuntime().Eng)
	newEng.SetTransaction(&engine.Transaction{Result: &engine.TxResultData{ReturnData: []byte{0xde, 0xad, 0xbe, 0xef}}})
	newEng.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResReturn})

	stop, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, engine.StopExit, stop)

	require.True(t, newRunner.Initialized)
	require.EqualValues(t, 2, deployerRunner.Nonce)
	require.Equal(t, []common.Address{deployerAddr}, w.CallStack())

	pushed := deployerEng.StackValues()
	require.Len(t, pushed, 1)
	v, err := pushed[0].Resolve(nil)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).SetBytes(newAddr[:]), v)
}

// S5: CREATE failure removes the new runner and pushes 0, while the nonce
// still reflects the earlier increment.
func TestRun_CreateFailureRemovesRunner(t *testing.T) {
	w := newWorld()

	deployerAddr := common.HexToAddress("0xA")
	_, err := w.Deploy("", deployerAddr, common.Address{}, nil, true)
	require.NoError(t, err)

	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: deployerAddr}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	_, resumable, err := w.Step()
	require.NoError(t, err)
	require.True(t, resumable)

	deployerRunner, _ := w.Contract(deployerAddr)
	deployerEng := mustEngine(t, deployerRunner.CurrentRuntime().Eng)
	deployerEng.SetOutgoingTransaction(&engine.Transaction{
		Type:   engine.TxCreate,
		Sender: engine.Const(new(uint256.Int).SetBytes(deployerAddr[:])),
		Data:   []byte{0xfe},
	})
	deployerEng.Script(&engine.Info{Stop: engine.StopNone})

	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	newAddr := w.CallStack()[1]

	newRunner, _ := w.Contract(newAddr)
	newEng := mustEngine(t, newRunner.CurrentRuntime().Eng)
	newEng.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResRevert})

	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)

	_, stillExists := w.Contract(newAddr)
	require.False(t, stillExists)
	require.EqualValues(t, 2, deployerRunner.Nonce)

	pushed := deployerEng.StackValues()
	require.Len(t, pushed, 1)
	v, err := pushed[0].Resolve(nil)
	require.NoError(t, err)
	require.True(t, v.IsZero())
}

// S2: reentrancy. A calls B, B calls back into A; the call stack must show
// the reentrant frame (A, B, A) while it's active and unwind in the right
// order afterward.
func TestRun_Reentrancy(t *testing.T) {
	w := newWorld()

	addrA := common.HexToAddress("0xA")
	addrB := common.HexToAddress("0xB")
	_, err := w.Deploy("", addrA, common.Address{}, nil, true)
	require.NoError(t, err)
	_, err = w.Deploy("", addrB, common.Address{}, nil, true)
	require.NoError(t, err)

	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: addrA}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	// Step 1: start the top-level transaction on A.
	_, resumable, err := w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, []common.Address{addrA}, w.CallStack())

	runnerA, _ := w.Contract(addrA)
	outerA := mustEngine(t, runnerA.CurrentRuntime().Eng)
	outerA.SetOutgoingTransaction(&engine.Transaction{
		Type:      engine.TxCall,
		Recipient: addrB,
		RetOffset: engine.ConstFromUint64(0),
		RetLen:    engine.ConstFromUint64(0),
	})
	outerA.Script(&engine.Info{Stop: engine.StopNone})

	// Step 2: A calls B.
	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, []common.Address{addrA, addrB}, w.CallStack())

	runnerB, _ := w.Contract(addrB)
	engB := mustEngine(t, runnerB.CurrentRuntime().Eng)
	engB.SetOutgoingTransaction(&engine.Transaction{
		Type:      engine.TxCall,
		Recipient: addrA,
		RetOffset: engine.ConstFromUint64(0),
		RetLen:    engine.ConstFromUint64(0),
	})
	engB.Script(&engine.Info{Stop: engine.StopNone})

	// Step 3: B calls back into A. The call stack now shows the reentrant
	// frame while it's live.
	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, []common.Address{addrA, addrB, addrA}, w.CallStack())

	innerA := mustEngine(t, runnerA.CurrentRuntime().Eng)
	require.NotSame(t, outerA, innerA, "reentrant frame must run on its own forked engine")
	innerA.SetTransaction(&engine.Transaction{Result: &engine.TxResultData{}})
	innerA.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResReturn})

	// Step 4: the reentrant A frame returns, unwinding to B.
	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, []common.Address{addrA, addrB}, w.CallStack())
	require.Len(t, engB.StackValues(), 1)

	engB.SetTransaction(&engine.Transaction{Result: &engine.TxResultData{}})
	engB.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResReturn})

	// Step 5: B returns, unwinding to the outer A frame.
	_, resumable, err = w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, []common.Address{addrA}, w.CallStack())
	require.Len(t, outerA.StackValues(), 1)

	outerA.SetTransaction(&engine.Transaction{Result: &engine.TxResultData{}})
	outerA.Script(&engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResReturn})

	// Step 6: the outer A frame returns, fully unwinding the call stack.
	stop, resumable, err := w.Step()
	require.NoError(t, err)
	require.True(t, resumable)
	require.Equal(t, engine.StopExit, stop)
	require.Empty(t, w.CallStack())
}

func TestAttachDetachMonitor_RejectsDuplicatesAndUnknown(t *testing.T) {
	w := newWorld()
	mon := &countingMonitor{}
	require.NoError(t, w.AttachMonitor(mon))
	require.Error(t, w.AttachMonitor(mon))
	require.NoError(t, w.DetachMonitor(mon))
	require.Error(t, w.DetachMonitor(mon))
}

func TestCurrentContract_ErrorsWithEmptyCallStack(t *testing.T) {
	w := newWorld()
	_, err := w.CurrentContract()
	require.ErrorIs(t, err, optikerrors.ErrNoActiveContract)
}

func TestCurrentContract_ReturnsTopOfCallStack(t *testing.T) {
	w := newWorld()
	addr := common.HexToAddress("0x1000")
	_, err := w.Deploy("", addr, common.Address{}, nil, true)
	require.NoError(t, err)
	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: addr}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))

	_, resumable, err := w.Step()
	require.NoError(t, err)
	require.True(t, resumable)

	runner, err := w.CurrentContract()
	require.NoError(t, err)
	require.Equal(t, addr, runner.Address)
}

func TestRun_NoContractAtRecipient(t *testing.T) {
	w := newWorld()
	w.Enqueue(world.NewAbstractTx(&engine.Transaction{Recipient: common.HexToAddress("0xdead")}, engine.ConstFromUint64(0), engine.ConstFromUint64(0), nil))
	_, err := w.Run()
	require.Error(t, err)
}
