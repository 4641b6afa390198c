// Package optiklog gives the orchestrator and corpus bridge a single,
// consistent logging voice instead of mixing fmt.Printf debug lines with
// structured logging, which is what the teacher's own revm_bridge package
// does (see statedb.go's leftover `fmt.Printf("[flushPending] ...")` calls).
// It is a thin wrapper over the teacher's logging dependency,
// github.com/ethereum/go-ethereum/log, adding a "component" field so log
// lines from world/corpus/engine are easy to filter.
package optiklog

import "github.com/ethereum/go-ethereum/log"

// Logger is a narrow façade over log.Logger; callers never need the rest of
// the go-ethereum/log surface (handlers, format selection, ...) which stays
// the responsibility of whatever process wires this module up (cmd/optikreplay
// or the external fuzzer harness).
type Logger struct {
	inner log.Logger
}

// New returns a Logger tagged with the given component name, e.g. "world"
// or "corpus".
func New(component string) Logger {
	return Logger{inner: log.Root().With("component", component)}
}

func (l Logger) Trace(msg string, ctx ...any) { l.inner.Trace(msg, ctx...) }
func (l Logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l Logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l Logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l Logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }
