// Package world implements the EVM World orchestrator: the multi-contract
// execution driver that feeds a queue of pending transactions to a symbolic
// engine.Engine backend, modeling message calls, contract creation, and
// reentrancy as a nested stack of suspended contract frames.
package world

import "github.com/trailofbits/optik-go/engine"

// AbstractTx is an immutable transaction record pairing an EVM transaction
// with the symbolic variable seeds it depends on and the block-info deltas
// that must be applied before it runs.
type AbstractTx struct {
	Tx *engine.Transaction

	// BlockNumInc and BlockTimestampInc are applied to the world's root
	// engine when this transaction starts as a top-level transaction, after
	// its frame is pushed and before that frame first runs.
	BlockNumInc       engine.Value
	BlockTimestampInc engine.Value

	// Ctx seeds the symbolic variables referenced by Tx. It is merged into
	// the frame's engine on push, never mutated afterwards.
	Ctx *engine.Context
}

// NewAbstractTx returns an AbstractTx with an empty variable context if ctx
// is nil, matching the synthetic transactions the orchestrator builds for
// nested CALL/CREATE sub-calls.
func NewAbstractTx(tx *engine.Transaction, blockNumInc, blockTimestampInc engine.Value, ctx *engine.Context) *AbstractTx {
	if ctx == nil {
		ctx = engine.NewContext()
	}
	return &AbstractTx{Tx: tx, BlockNumInc: blockNumInc, BlockTimestampInc: blockTimestampInc, Ctx: ctx}
}
