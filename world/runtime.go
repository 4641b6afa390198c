package world

import "github.com/trailofbits/optik-go/engine"

// EVMRuntime is one in-flight execution position: one engine.Engine bound to
// one AbstractTx, plus the snapshot taken at birth for revert.
type EVMRuntime struct {
	Eng       engine.Engine
	InitState engine.SnapshotToken
}

// NewEVMRuntime merges tx's variable context into eng and installs tx's
// transaction as the engine's current transaction, then captures the initial
// snapshot. tx may be nil for a runtime whose transaction was already
// installed by the caller.
func NewEVMRuntime(eng engine.Engine, tx *AbstractTx) *EVMRuntime {
	if tx != nil {
		eng.Vars().UpdateFrom(tx.Ctx)
		eng.Contract().SetTransaction(tx.Tx)
	}
	return &EVMRuntime{Eng: eng, InitState: eng.TakeSnapshot()}
}

// Run resumes the frame's engine and returns its Info before any revert is
// applied. Callers must read every Info field they need before calling
// Revert: a revert invalidates the state Info describes.
func (rt *EVMRuntime) Run() (*engine.Info, error) {
	return rt.Eng.Run()
}

// Revert restores InitState. The snapshot remains live and may be restored
// again; it is only released when the runtime is popped.
func (rt *EVMRuntime) Revert() {
	rt.Eng.RestoreSnapshot(rt.InitState, false)
}
