package engine

// StopReason is the reason an engine's Run call returned control to the
// orchestrator. Only Exit and None are interpreted by the core (spec.md
// §4.3); every other value causes the main loop to exit immediately so the
// caller can diagnose it, per the "Any other stop reason" clause.
type StopReason int

const (
	// StopExit means the EVM frame ran to completion (normally or via
	// REVERT/other non-success exit).
	StopExit StopReason = iota
	// StopNone means execution suspended without exiting, typically because
	// an outgoing sub-transaction (CALL/CREATE/...) needs to be serviced.
	StopNone
	// StopHook means a monitor/instrumentation breakpoint fired.
	StopHook
	// StopError means the engine itself faulted (not a contract-level
	// revert); the world's main loop surfaces this to the caller unchanged.
	StopError
)

// String returns a human-readable name for the stop reason.
func (s StopReason) String() string {
	switch s {
	case StopExit:
		return "EXIT"
	case StopNone:
		return "NONE"
	case StopHook:
		return "HOOK"
	case StopError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// TxResult is the concrete EVM exit status of a completed frame
// (contract(engine).transaction.result / info.exit_status). The EVM
// architecture never leaves this symbolic, so the orchestrator may always
// read it as a concrete value (spec.md §4.3).
type TxResult uint64

const (
	TxResStop TxResult = iota
	TxResReturn
	TxResRevert
	TxResOutOfGas
	TxResInvalidInstruction
	TxResOther
)

// String returns a human-readable name for the exit status.
func (r TxResult) String() string {
	switch r {
	case TxResStop:
		return "STOP"
	case TxResReturn:
		return "RETURN"
	case TxResRevert:
		return "REVERT"
	case TxResOutOfGas:
		return "OUT_OF_GAS"
	case TxResInvalidInstruction:
		return "INVALID_INSTRUCTION"
	default:
		return "OTHER"
	}
}

// Succeeded reports whether r represents a successful transaction exit
// (spec.md §4.3: `exit_status ∈ {STOP, RETURN}`).
func (r TxResult) Succeeded() bool {
	return r == TxResStop || r == TxResReturn
}

// Info is returned by Engine.Run before any revert is applied. Callers must
// read every field they need before invoking EVMRuntime.Revert, since a
// revert invalidates the engine state Info was captured from.
type Info struct {
	Stop       StopReason
	ExitStatus TxResult
	// Err carries diagnostic detail when Stop == StopError.
	Err error
}
