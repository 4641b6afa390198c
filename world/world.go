package world

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/trailofbits/optik-go/addr"
	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/optiklog"
	"github.com/trailofbits/optik-go/optikerrors"
)

// EVMWorld is the orchestrator: it owns every deployed contract, the nested
// call stack of addresses currently executing, the pending transaction
// queue, and the world-level root engine whose variable context and path
// constraints are shared by every contract's root engine.
type EVMWorld struct {
	contracts map[common.Address]*ContractRunner
	callStack []common.Address
	txQueue   []*AbstractTx

	currentTx    *AbstractTx
	currentTxNum uint64

	monitors []WorldMonitor

	rootEngine engine.Engine

	log optiklog.Logger
}

// NewEVMWorld constructs an orchestrator around a freshly built root engine.
// newEngine is a factory rather than a value so the world never has to know
// how to construct a backend itself; it is called exactly once.
func NewEVMWorld(newEngine func() engine.Engine) *EVMWorld {
	return &EVMWorld{
		contracts:  make(map[common.Address]*ContractRunner),
		rootEngine: newEngine(),
		log:        optiklog.New("world"),
	}
}

// Enqueue appends tx to the FIFO of pending top-level transactions.
func (w *EVMWorld) Enqueue(tx *AbstractTx) {
	w.txQueue = append(w.txQueue, tx)
}

// CurrentTxNum returns the monotonically increasing transaction counter,
// incremented once per top-level transaction and once per nested sub-call.
func (w *EVMWorld) CurrentTxNum() uint64 { return w.currentTxNum }

// CallStack returns a copy of the current nested call addresses, top last.
func (w *EVMWorld) CallStack() []common.Address {
	return append([]common.Address(nil), w.callStack...)
}

// Contract returns the ContractRunner deployed at address, if any.
func (w *EVMWorld) Contract(address common.Address) (*ContractRunner, bool) {
	r, ok := w.contracts[address]
	return r, ok
}

// CurrentContract returns the ContractRunner at the top of the call stack,
// failing with ErrNoActiveContract if nothing is currently executing.
func (w *EVMWorld) CurrentContract() (*ContractRunner, error) {
	if len(w.callStack) == 0 {
		return nil, optikerrors.World(optikerrors.ErrNoActiveContract, "call stack is empty")
	}
	return w.currentRunner(), nil
}

// AttachMonitor registers m and fires its OnAttach callback. Attaching the
// same monitor twice is an error.
func (w *EVMWorld) AttachMonitor(m WorldMonitor) error {
	for _, existing := range w.monitors {
		if existing == m {
			return optikerrors.World(optikerrors.ErrMonitorAlreadyAttached, "%T", m)
		}
	}
	w.monitors = append(w.monitors, m)
	m.OnAttach(w)
	return nil
}

// DetachMonitor removes m. Detaching a monitor that was never attached is an
// error.
func (w *EVMWorld) DetachMonitor(m WorldMonitor) error {
	for i, existing := range w.monitors {
		if existing == m {
			w.monitors = append(w.monitors[:i], w.monitors[i+1:]...)
			return nil
		}
	}
	return optikerrors.World(optikerrors.ErrMonitorNotAttached, "%T", m)
}

func (w *EVMWorld) fireTransaction(tx *AbstractTx) {
	for _, m := range w.monitors {
		m.OnTransaction(tx)
	}
}

func (w *EVMWorld) fireNewRuntime(rt *EVMRuntime) {
	for _, m := range w.monitors {
		m.OnNewRuntime(rt)
	}
}

// Deploy registers a new ContractRunner at address, failing if the address
// is already in use. It is used both for the world's initial deployments
// and internally by CREATE handling.
func (w *EVMWorld) Deploy(file string, address, deployer common.Address, args [][]byte, runInitBytecode bool) (*ContractRunner, error) {
	if _, exists := w.contracts[address]; exists {
		return nil, optikerrors.World(optikerrors.ErrDeploymentCollision, "%s", address.Hex())
	}
	runner, err := newContractRunner(w.rootEngine, address, deployer, file, args, runInitBytecode)
	if err != nil {
		return nil, err
	}
	w.contracts[address] = runner
	return runner, nil
}

func (w *EVMWorld) currentRunner() *ContractRunner {
	active := w.callStack[len(w.callStack)-1]
	return w.contracts[active]
}

func (w *EVMWorld) callerRunner() (*ContractRunner, bool) {
	if len(w.callStack) < 2 {
		return nil, false
	}
	caller := w.callStack[len(w.callStack)-2]
	return w.contracts[caller], true
}

// Step advances the state machine by one unit of work. If the call stack is
// empty, it starts the next queued top-level transaction (pushing its frame)
// and returns StopNone without running that frame; otherwise it makes exactly
// one engine.Run() call on the active frame and dispatches whatever stop
// reason it returns. It reports whether the loop may keep advancing
// (resumable): true after starting a transaction, a handled EXIT or a
// dispatched outgoing sub-call, false on a terminal/unhandled stop reason or
// error.
//
// Step is exported so tests can drive the orchestrator one frame at a time
// and script a newly pushed frame's engine before it runs, something a
// single opaque Run() call cannot support.
func (w *EVMWorld) Step() (engine.StopReason, bool, error) {
	if len(w.txQueue) == 0 && len(w.callStack) == 0 {
		return engine.StopNone, false, optikerrors.World(optikerrors.ErrNoMoreTransactions, "run() called with an empty queue and call stack")
	}
	if len(w.callStack) == 0 {
		if err := w.startTransaction(); err != nil {
			return engine.StopNone, false, err
		}
		return engine.StopNone, true, nil
	}

	runner := w.currentRunner()
	rt := runner.CurrentRuntime()
	info, err := rt.Run()
	if err != nil {
		return engine.StopError, false, err
	}

	switch info.Stop {
	case engine.StopExit:
		if err := w.handleExit(runner, rt, info); err != nil {
			return info.Stop, false, err
		}
		return info.Stop, true, nil
	case engine.StopNone:
		out := rt.Eng.Contract().OutgoingTransaction()
		if out == nil {
			return info.Stop, false, nil
		}
		w.currentTxNum++
		if err := w.dispatchOutgoing(out); err != nil {
			return info.Stop, false, err
		}
		return info.Stop, true, nil
	default:
		return info.Stop, false, info.Err
	}
}

// Run drains the transaction queue and call stack by repeatedly calling
// Step, until both are empty or a non-resumable stop reason is reached. It
// returns the last observed stop reason.
func (w *EVMWorld) Run() (engine.StopReason, error) {
	var lastStop engine.StopReason
	for {
		stop, resumable, err := w.Step()
		lastStop = stop
		if err != nil {
			return lastStop, err
		}
		if !resumable {
			return lastStop, nil
		}
		if len(w.txQueue) == 0 && len(w.callStack) == 0 {
			return lastStop, nil
		}
	}
}

func (w *EVMWorld) startTransaction() error {
	tx := w.txQueue[0]
	w.txQueue = w.txQueue[1:]
	w.currentTx = tx
	w.currentTxNum++

	runner, ok := w.contracts[tx.Tx.Recipient]
	if !ok {
		return optikerrors.World(optikerrors.ErrNoContractAtAddress, "%s", tx.Tx.Recipient.Hex())
	}

	rt := runner.PushRuntime(tx)
	w.fireNewRuntime(rt)
	w.callStack = append(w.callStack, tx.Tx.Recipient)

	w.rootEngine.IncrementBlockNumber(tx.BlockNumInc)
	w.rootEngine.IncrementBlockTimestamp(tx.BlockTimestampInc)

	w.fireTransaction(tx)
	w.log.Debug("started transaction", "recipient", tx.Tx.Recipient, "txNum", w.currentTxNum)
	return nil
}

func (w *EVMWorld) dispatchOutgoing(out *engine.Transaction) error {
	switch out.Type {
	case engine.TxCreate:
		return w.handleCreate(out)
	case engine.TxCreate2:
		return optikerrors.World(optikerrors.ErrUnsupportedTxType, "CREATE2")
	case engine.TxCall:
		return w.handleCall(out)
	case engine.TxCallCode, engine.TxDelegateCall:
		return optikerrors.World(optikerrors.ErrUnsupportedTxType, "%s", out.Type)
	default:
		return optikerrors.World(optikerrors.ErrUnsupportedTxType, "%s", out.Type)
	}
}

// handleExit implements the EXIT branch of the main loop: §4.3.
func (w *EVMWorld) handleExit(runner *ContractRunner, rt *EVMRuntime, info *engine.Info) error {
	succeeded := info.ExitStatus.Succeeded()

	callerRunner, hasCaller := w.callerRunner()
	isMsgCallReturn := false
	if hasCaller {
		callerEngine := callerRunner.CurrentRuntime().Eng
		callerEngine.Contract().SetResultFromLastCall(rt.Eng.Contract().Transaction().Result)
		isMsgCallReturn = true
	}

	if info.ExitStatus == engine.TxResRevert {
		rt.Revert()
	}

	wasUninitialized := !runner.Initialized
	if wasUninitialized {
		if err := w.handleCreateAfter(runner, rt, succeeded); err != nil {
			return err
		}
	}

	runner.PopRuntime()

	if isMsgCallReturn {
		callerEngine := callerRunner.CurrentRuntime().Eng
		outTx := callerEngine.Contract().OutgoingTransaction()
		if outTx != nil && (outTx.Type == engine.TxCall || outTx.Type == engine.TxCallCode || outTx.Type == engine.TxDelegateCall) {
			if err := w.handleCallAfter(callerEngine, succeeded); err != nil {
				return err
			}
		}
		callerEngine.Contract().SetOutgoingTransaction(nil)
	}

	w.callStack = w.callStack[:len(w.callStack)-1]
	return nil
}

// handleCreate implements entering a CREATE sub-call: §4.4.
func (w *EVMWorld) handleCreate(out *engine.Transaction) error {
	issuer := w.currentRunner()
	issuerEngine := issuer.CurrentRuntime().Eng

	deployerWord, err := out.Sender.Resolve(issuerEngine.Vars())
	if err != nil {
		return err
	}
	deployer := common.BytesToAddress(deployerWord.Bytes())

	newAddress, err := addr.NewContractAddress(deployer, issuer.Nonce)
	if err != nil {
		return err
	}
	issuer.Nonce++

	newRunner, err := w.Deploy("", newAddress, deployer, [][]byte{out.Data}, false)
	if err != nil {
		return err
	}

	synthTx := NewAbstractTx(&engine.Transaction{
		Origin:    out.Origin,
		Sender:    out.Sender,
		Recipient: newAddress,
		Value:     out.Value,
		Data:      out.Data,
		GasPrice:  out.GasPrice,
		GasLimit:  out.GasLimit,
	}, w.currentTx.BlockNumInc, w.currentTx.BlockTimestampInc, nil)

	rt := newRunner.PushRuntime(synthTx)
	w.fireNewRuntime(rt)
	w.callStack = append(w.callStack, newAddress)
	return nil
}

// handleCreateAfter implements returning from a CREATE constructor frame:
// §4.4. It runs while runner's own frame is still on the call stack.
func (w *EVMWorld) handleCreateAfter(runner *ContractRunner, rt *EVMRuntime, succeeded bool) error {
	var result *uint256.Int
	if succeeded {
		runner.Initialized = true
		txResult := rt.Eng.Contract().Transaction().Result
		if txResult != nil {
			rt.Eng.SetEVMBytecode(txResult.ReturnData)
		}
		result = new(uint256.Int).SetBytes(runner.Address[:])
	} else {
		delete(w.contracts, runner.Address)
		result = new(uint256.Int)
	}

	if callerRunner, ok := w.callerRunner(); ok {
		callerRunner.CurrentRuntime().Eng.Contract().Stack().Push(engine.Const(result))
	}
	return nil
}

// handleCall implements entering a CALL sub-call: §4.5.
func (w *EVMWorld) handleCall(out *engine.Transaction) error {
	runner, ok := w.contracts[out.Recipient]
	if !ok {
		return optikerrors.World(optikerrors.ErrNoContractAtAddress, "%s", out.Recipient.Hex())
	}

	synthTx := NewAbstractTx(out.DeepCopy(), w.currentTx.BlockNumInc, w.currentTx.BlockTimestampInc, nil)

	rt := runner.PushRuntime(synthTx)
	w.fireNewRuntime(rt)
	w.callStack = append(w.callStack, runner.Address)
	return nil
}

// handleCallAfter implements returning from a CALL sub-call: §4.5.
func (w *EVMWorld) handleCallAfter(callerEngine engine.Engine, succeeded bool) error {
	var flag *uint256.Int
	if succeeded {
		flag = uint256.NewInt(1)
	} else {
		flag = new(uint256.Int)
	}
	callerEngine.Contract().Stack().Push(engine.Const(flag))

	outTx := callerEngine.Contract().OutgoingTransaction()
	lastRes := callerEngine.Contract().ResultFromLastCall()

	retLen, err := outTx.RetLen.Resolve(callerEngine.Vars())
	if err != nil {
		return err
	}
	if lastRes != nil && retLen.Uint64() < lastRes.ReturnDataSize {
		return optikerrors.World(optikerrors.ErrReturnBufferOverflow, "ret_len=%d return_data_size=%d", retLen.Uint64(), lastRes.ReturnDataSize)
	}

	var returnData []byte
	if lastRes != nil {
		returnData = lastRes.ReturnData
	}
	return callerEngine.Contract().Memory().WriteBuffer(outTx.RetOffset, returnData)
}
