package world

// WorldMonitor is a pluggable observer notified of top-level transactions
// and new runtime frames. Monitors are invoked synchronously, in attachment
// order, at well-defined points; they must not mutate the world's queue or
// call stack from within a callback.
type WorldMonitor interface {
	OnAttach(w *EVMWorld)
	// OnTransaction fires only for top-level queue transactions, never for
	// the synthetic AbstractTx values built for nested CALL/CREATE.
	OnTransaction(tx *AbstractTx)
	// OnNewRuntime fires for every runtime push, top-level or nested.
	OnNewRuntime(rt *EVMRuntime)
}

// BaseMonitor is a no-op WorldMonitor embeddable by monitors that only care
// about a subset of the callbacks.
type BaseMonitor struct{}

func (BaseMonitor) OnAttach(*EVMWorld)       {}
func (BaseMonitor) OnTransaction(*AbstractTx) {}
func (BaseMonitor) OnNewRuntime(*EVMRuntime)  {}
