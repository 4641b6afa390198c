// Package enginetest provides an in-memory, scriptable engine.Engine used to
// exercise the world and corpus packages without a real symbolic backend.
// It is test-only support, not a production backend: the real executor lives
// outside this module, exactly as spec.md §6 describes.
//
// Its snapshot bookkeeping is grounded on the teacher's opaque-handle
// registry (revm_bridge/handles.go): a sync.Map keyed by an
// atomically-incremented counter, reserving zero for "no handle". Its
// no-op-heavy surface mirrors core/tx_executor.go's stubEngine/stubChain:
// a minimal concrete type standing in for a much larger real backend.
package enginetest

import (
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/trailofbits/optik-go/engine"
)

// blockNumVar and blockTimestampVar are the Context entries Engine mutates on
// IncrementBlockNumber/IncrementBlockTimestamp. They live in the same shared
// Context as ordinary symbolic variables so that forks sharing "vars" observe
// block-info changes made through any sibling fork, per the decision recorded
// in SPEC_FULL.md for the upstream block-info-sharing open question.
const (
	blockNumVar       = "__block_number"
	blockTimestampVar = "__block_timestamp"
)

var snapshotSeq uint64

// snapshot is what a SnapshotToken actually points to: a deep copy of the
// engine's mutable state at the time TakeSnapshot was called.
type snapshot struct {
	memory  map[uint64][]byte
	tx      *engine.Transaction
	outTx   *engine.Transaction
	lastRes *engine.TxResultData
	stack   []engine.Value
}

// token is the opaque handle handed back to callers; it never exposes the
// snapshot pointer directly, matching the teacher's "no value from Rust's
// side should dereference a Go pointer directly" discipline.
type token uint64

// Engine is a scriptable in-memory stand-in for the external symbolic
// executor. The zero value is not usable; construct with New or Duplicate.
type Engine struct {
	vars *engine.Context

	mu      sync.Mutex
	memory  map[uint64][]byte
	stack   []engine.Value
	tx      *engine.Transaction
	outTx   *engine.Transaction
	lastRes *engine.TxResultData

	loadedFile string
	loadedArgs [][]byte
	envp       map[string]string
	code       []byte

	snapshots sync.Map // map[token]*snapshot

	results  []*engine.Info // scripted Run() responses, consumed FIFO
	runCount int

	linkedParent engine.Engine
}

// New returns a fresh Engine with its own variable context.
func New() *Engine {
	return &Engine{
		vars:   engine.NewContext(),
		memory: make(map[uint64][]byte),
	}
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.ContractView = (*Engine)(nil)
var _ engine.Stack = (*stackView)(nil)
var _ engine.Memory = (*memoryView)(nil)
var _ engine.RuntimeLinker = (*Engine)(nil)

// Script queues the responses returned by successive Run calls. Once the
// queued results are used up, Run returns the default unscripted response
// (see Run).
func (e *Engine) Script(results ...*engine.Info) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, results...)
}

// Vars implements engine.Engine.
func (e *Engine) Vars() *engine.Context { return e.vars }

// Load implements engine.Engine.
func (e *Engine) Load(file string, args [][]byte, envp map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadedFile = file
	e.loadedArgs = args
	e.envp = envp
	return nil
}

// SetEVMBytecode implements engine.Engine.
func (e *Engine) SetEVMBytecode(code []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.code = append([]byte(nil), code...)
}

// Duplicate implements engine.Engine. Vars are shared by pointer when
// requested; otherwise the fork starts from a fresh, empty context, matching
// the upstream semantics where an engine without shared vars begins
// unseeded. Memory is likewise the source's own map when requested, and a
// fresh, empty map otherwise.
func (e *Engine) Duplicate(share engine.ShareSet) engine.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	fork := &Engine{memory: make(map[uint64][]byte)}
	if share.Vars {
		fork.vars = e.vars
	} else {
		fork.vars = engine.NewContext()
	}
	if share.Mem {
		fork.memory = e.memory
	}
	// Path-constraint sharing has no observable effect on this in-memory
	// stand-in: there is no solver whose constraint set would diverge.
	return fork
}

// TakeSnapshot implements engine.Engine.
func (e *Engine) TakeSnapshot() engine.SnapshotToken {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &snapshot{
		memory:  make(map[uint64][]byte, len(e.memory)),
		tx:      e.tx.DeepCopy(),
		outTx:   e.outTx.DeepCopy(),
		stack:   append([]engine.Value(nil), e.stack...),
	}
	for k, v := range e.memory {
		snap.memory[k] = append([]byte(nil), v...)
	}
	if e.lastRes != nil {
		res := *e.lastRes
		snap.lastRes = &res
	}

	tok := token(atomic.AddUint64(&snapshotSeq, 1))
	e.snapshots.Store(tok, snap)
	return tok
}

// RestoreSnapshot implements engine.Engine.
func (e *Engine) RestoreSnapshot(rawTok engine.SnapshotToken, remove bool) {
	tok, ok := rawTok.(token)
	if !ok {
		return
	}
	v, ok := e.snapshots.Load(tok)
	if !ok {
		return
	}
	snap := v.(*snapshot)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory = make(map[uint64][]byte, len(snap.memory))
	for k, v := range snap.memory {
		e.memory[k] = append([]byte(nil), v...)
	}
	e.tx = snap.tx.DeepCopy()
	e.outTx = snap.outTx.DeepCopy()
	e.stack = append([]engine.Value(nil), snap.stack...)
	if snap.lastRes != nil {
		res := *snap.lastRes
		e.lastRes = &res
	} else {
		e.lastRes = nil
	}

	if remove {
		e.snapshots.Delete(tok)
	}
}

// Run implements engine.Engine, returning the next scripted Info. The
// default (unscripted) response is StopExit/TxResStop, letting simple tests
// omit Script entirely when a single successful call suffices.
func (e *Engine) Run() (*engine.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runCount >= len(e.results) {
		e.runCount++
		return &engine.Info{Stop: engine.StopExit, ExitStatus: engine.TxResStop}, nil
	}
	info := e.results[e.runCount]
	e.runCount++
	if info.Err != nil {
		return info, info.Err
	}
	return info, nil
}

// Contract implements engine.Engine; Engine itself is its own ContractView.
func (e *Engine) Contract() engine.ContractView { return e }

// Transaction implements engine.ContractView.
func (e *Engine) Transaction() *engine.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx
}

// SetTransaction implements engine.ContractView.
func (e *Engine) SetTransaction(tx *engine.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tx = tx
}

// OutgoingTransaction implements engine.ContractView.
func (e *Engine) OutgoingTransaction() *engine.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outTx
}

// SetOutgoingTransaction implements engine.ContractView.
func (e *Engine) SetOutgoingTransaction(tx *engine.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outTx = tx
}

// ResultFromLastCall implements engine.ContractView.
func (e *Engine) ResultFromLastCall() *engine.TxResultData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRes
}

// SetResultFromLastCall implements engine.ContractView.
func (e *Engine) SetResultFromLastCall(res *engine.TxResultData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRes = res
}

// Stack implements engine.ContractView.
func (e *Engine) Stack() engine.Stack { return &stackView{e: e} }

// Memory implements engine.ContractView.
func (e *Engine) Memory() engine.Memory { return &memoryView{e: e} }

// StackValues returns a snapshot of everything pushed so far, for assertions
// in tests.
func (e *Engine) StackValues() []engine.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Value(nil), e.stack...)
}

// IncrementBlockNumber implements engine.Engine.
func (e *Engine) IncrementBlockNumber(delta engine.Value) {
	e.bump(blockNumVar, delta)
}

// IncrementBlockTimestamp implements engine.Engine.
func (e *Engine) IncrementBlockTimestamp(delta engine.Value) {
	e.bump(blockTimestampVar, delta)
}

func (e *Engine) bump(name string, delta engine.Value) {
	dv, err := delta.Resolve(e.vars)
	if err != nil {
		return
	}
	cur, ok := e.vars.Get(name)
	if !ok {
		cur = new(uint256.Int)
	}
	next := new(uint256.Int).Add(cur, dv)
	e.vars.Set(name, next)
}

// BlockNumber and BlockTimestamp read back the counters IncrementBlockNumber
// / IncrementBlockTimestamp maintain, for test assertions.
func (e *Engine) BlockNumber() *uint256.Int {
	v, ok := e.vars.Get(blockNumVar)
	if !ok {
		return new(uint256.Int)
	}
	return v.Clone()
}

func (e *Engine) BlockTimestamp() *uint256.Int {
	v, ok := e.vars.Get(blockTimestampVar)
	if !ok {
		return new(uint256.Int)
	}
	return v.Clone()
}

// LinkEVMRuntime implements engine.RuntimeLinker so tests can assert that
// world wires it up on fork creation.
func (e *Engine) LinkEVMRuntime(parent engine.Engine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkedParent = parent
}

// LinkedParent returns whatever LinkEVMRuntime last recorded, or nil.
func (e *Engine) LinkedParent() engine.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linkedParent
}

type stackView struct{ e *Engine }

func (s *stackView) Push(v engine.Value) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.e.stack = append(s.e.stack, v)
}

type memoryView struct{ e *Engine }

func (m *memoryView) WriteBuffer(offset engine.Value, data []byte) error {
	off, err := offset.Resolve(m.e.vars)
	if err != nil {
		return err
	}
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	m.e.memory[off.Uint64()] = append([]byte(nil), data...)
	return nil
}
