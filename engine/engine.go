// Package engine defines the boundary between the orchestrator and the
// external symbolic EVM executor. Nothing in this package executes EVM
// bytecode: it only describes the contract that a real backend (the
// constraint-solver-backed interpreter referenced throughout spec.md §6)
// must satisfy so that world.EVMWorld can drive it.
//
// The shape of the interface mirrors the teacher's own backend-selection
// boundary (core/vm.Executor in the copied go-ethereum fork): a small
// required interface plus optional capability interfaces that a concrete
// backend may or may not implement, probed with a type assertion rather
// than baked into the required contract.
package engine

// ShareSet selects which pieces of engine state a Duplicate fork shares with
// its source, matching the `share={...}` parameter of the upstream
// `_duplicate` primitive.
type ShareSet struct {
	Mem  bool
	Vars bool
	Path bool
}

// SharePath forks sharing only the variable context and path constraints
// (used when a ContractRunner is created from the world's root engine: it
// gets its own memory to hold its own bytecode).
func SharePath() ShareSet { return ShareSet{Vars: true, Path: true} }

// ShareAll forks sharing memory, variables, and path constraints (used when
// pushing a new runtime for an existing contract: the frame sees the same
// code and storage as its runner but runs at an independent position).
func ShareAll() ShareSet { return ShareSet{Mem: true, Vars: true, Path: true} }

// SnapshotToken is an opaque handle returned by Engine.TakeSnapshot. It is
// valid only for the lifetime of the engine that produced it, and only ever
// passed back to that same engine's RestoreSnapshot.
type SnapshotToken interface{}

// Stack is the subset of the EVM operand stack the orchestrator needs to
// touch directly (pushing CALL/CREATE return values).
type Stack interface {
	Push(v Value)
}

// Memory is the subset of EVM memory the orchestrator needs to touch
// directly (writing CALL return data into the caller's buffer).
type Memory interface {
	WriteBuffer(offset Value, data []byte) error
}

// ContractView is the engine's EVM-specific view exposed by the `contract`
// helper in spec.md §6: the currently installed transaction, any pending
// outgoing sub-transaction, the result carried over from the last completed
// sub-call, and handles onto the frame's stack/memory.
type ContractView interface {
	Transaction() *Transaction
	SetTransaction(tx *Transaction)

	OutgoingTransaction() *Transaction
	SetOutgoingTransaction(tx *Transaction)

	ResultFromLastCall() *TxResultData
	SetResultFromLastCall(res *TxResultData)

	Stack() Stack
	Memory() Memory
}

// Engine is the required interface of the external symbolic executor.
// EVMWorld holds and forks Engine values but never owns or constructs the
// underlying backend directly; see world.NewEVMWorld's factory parameter.
type Engine interface {
	// Vars returns the engine's variable context.
	Vars() *Context

	// Load installs a contract's bytecode (read from file, or from args
	// when file is empty, matching the CREATE code path) and environment
	// entries such as "address"/"deployer"/"no_run_init_bytecode".
	Load(file string, args [][]byte, envp map[string]string) error

	// Duplicate forks the engine, sharing exactly the state named in share.
	Duplicate(share ShareSet) Engine

	// TakeSnapshot captures engine state for later restoration.
	TakeSnapshot() SnapshotToken
	// RestoreSnapshot restores state captured by TakeSnapshot. If remove is
	// false the token remains valid for repeated restoration.
	RestoreSnapshot(tok SnapshotToken, remove bool)

	// Run resumes execution until the engine suspends; see Info and
	// StopReason for how the result is interpreted.
	Run() (*Info, error)

	// Contract returns the engine's EVM contract view.
	Contract() ContractView

	// IncrementBlockNumber and IncrementBlockTimestamp apply the per-
	// transaction block-info deltas carried on AbstractTx.
	IncrementBlockNumber(delta Value)
	IncrementBlockTimestamp(delta Value)

	// SetEVMBytecode overwrites the engine's installed code, used to
	// install runtime bytecode once a constructor returns successfully.
	SetEVMBytecode(code []byte)
}

// RuntimeLinker is an optional capability a backend may implement to receive
// the `new_evm_runtime(new_engine, parent_engine)` hook described in
// spec.md §6. Not every backend needs this: it exists for executors whose
// EVM-specific runtime handle must be explicitly attached after a fork,
// mirroring the optional-interface probing the teacher uses for e.g.
// `SetSpec` (core/tx_executor.go).
type RuntimeLinker interface {
	LinkEVMRuntime(parent Engine)
}

// LinkRuntime attaches child to parent's EVM runtime if child supports it.
// It is a no-op for backends that don't need an explicit link step.
func LinkRuntime(child, parent Engine) {
	if linker, ok := child.(RuntimeLinker); ok {
		linker.LinkEVMRuntime(parent)
	}
}
