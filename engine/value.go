package engine

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// Context is the variable context shared by an engine and every fork derived
// from it via Engine.Duplicate with the "vars" share flag set. It holds the
// concrete seed assignment for symbolic variables embedded in a Transaction,
// the same role VarContext plays in the upstream symbolic executor.
//
// A Context is safe for concurrent use, mirroring the teacher's handling of
// shared StateDB-backed state (revm_bridge.stateDBImpl) with an internal
// sync.Mutex rather than requiring callers to synchronize externally.
type Context struct {
	mu   sync.Mutex
	vars map[string]*uint256.Int
}

// NewContext returns an empty variable context.
func NewContext() *Context {
	return &Context{vars: make(map[string]*uint256.Int)}
}

// Get returns the concrete seed for name, if one has been assigned.
func (c *Context) Get(name string) (*uint256.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// Set assigns a concrete seed value to a variable name.
func (c *Context) Set(name string, v *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = v
}

// UpdateFrom merges every assignment in other into c, overwriting existing
// entries with the same name. This is the Go analogue of
// `engine.vars.update_from(ctx)`.
func (c *Context) UpdateFrom(other *Context) {
	if other == nil {
		return
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range other.vars {
		c.vars[k] = v
	}
}

// Names returns every variable name currently assigned, in no particular
// order.
func (c *Context) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.vars))
	for k := range c.vars {
		names = append(names, k)
	}
	return names
}

// Value is a possibly-symbolic 256-bit word. Concrete values resolve to
// themselves; symbolic variables resolve against a Context seed.
type Value interface {
	// Resolve concretizes the value against ctx. ctx may be nil for values
	// that are already concrete.
	Resolve(ctx *Context) (*uint256.Int, error)
	// String returns a debug representation; for variables this is the
	// variable name, for constants the decimal value.
	String() string
}

type constValue struct {
	v *uint256.Int
}

// Const wraps a concrete 256-bit constant as a Value.
func Const(v *uint256.Int) Value {
	if v == nil {
		v = new(uint256.Int)
	}
	return constValue{v: v}
}

// ConstFromUint64 is a convenience constructor for small concrete constants.
func ConstFromUint64(v uint64) Value {
	return constValue{v: uint256.NewInt(v)}
}

func (c constValue) Resolve(*Context) (*uint256.Int, error) { return c.v.Clone(), nil }
func (c constValue) String() string                         { return c.v.Dec() }

type varValue struct {
	name string
	bits int
}

// Var returns a symbolic variable reference. bits records the declared width
// for documentation/validation purposes only; Resolve does not truncate.
func Var(name string, bits int) Value {
	return varValue{name: name, bits: bits}
}

func (v varValue) Resolve(ctx *Context) (*uint256.Int, error) {
	if ctx == nil {
		return nil, fmt.Errorf("engine: no context to resolve symbolic variable %q", v.name)
	}
	seed, ok := ctx.Get(v.name)
	if !ok {
		return nil, fmt.Errorf("engine: variable %q has no seed assignment in context", v.name)
	}
	return seed.Clone(), nil
}

func (v varValue) String() string { return v.name }
