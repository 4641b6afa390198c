package world

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/trailofbits/optik-go/engine"
)

// ContractRunner owns one deployed contract's root engine and the stack of
// EVMRuntime frames currently executing on it. More than one simultaneous
// frame indicates reentrancy: the contract received a fresh message call
// while an earlier invocation of itself is still suspended below it.
type ContractRunner struct {
	Address common.Address

	// Nonce starts at 1 per EIP-161 and is incremented each time this
	// contract issues a CREATE. CREATE2 is refused at dispatch and leaves it
	// unchanged.
	Nonce uint64

	// Initialized is false while the constructor frame is still pending and
	// becomes true once it exits successfully and runtime bytecode has been
	// installed.
	Initialized bool

	// RootEngine is forked from the world's root engine sharing {vars,
	// path} but not memory, so this contract holds its own code and
	// storage independent of its siblings.
	RootEngine engine.Engine

	RuntimeStack []*EVMRuntime
}

// newContractRunner forks worldRoot for a newly deployed contract and loads
// its bytecode. runInitBytecode selects whether Load runs the init bytecode
// right away, leaving the runner Initialized (the world's initial
// deployments), or only installs it unexecuted with the upstream
// `no_run_init_bytecode` environment flag set, leaving the constructor to run
// later as an ordinary frame (CREATE).
func newContractRunner(worldRoot engine.Engine, address, deployer common.Address, file string, args [][]byte, runInitBytecode bool) (*ContractRunner, error) {
	root := worldRoot.Duplicate(engine.SharePath())
	engine.LinkRuntime(root, worldRoot)

	envp := map[string]string{
		"address":  hexutil.Encode(address[:]),
		"deployer": hexutil.Encode(deployer[:]),
	}
	if !runInitBytecode {
		envp["no_run_init_bytecode"] = "1"
	}
	if err := root.Load(file, args, envp); err != nil {
		return nil, err
	}

	return &ContractRunner{
		Address:     address,
		Nonce:       1,
		Initialized: runInitBytecode,
		RootEngine:  root,
	}, nil
}

// PushRuntime forks RootEngine sharing {mem, vars, path} so the new frame
// sees this contract's code and storage but runs at an independent
// execution position, wraps it in an EVMRuntime installed with tx, and
// appends it to the stack.
func (r *ContractRunner) PushRuntime(tx *AbstractTx) *EVMRuntime {
	child := r.RootEngine.Duplicate(engine.ShareAll())
	engine.LinkRuntime(child, r.RootEngine)
	rt := NewEVMRuntime(child, tx)
	r.RuntimeStack = append(r.RuntimeStack, rt)
	return rt
}

// PopRuntime removes the top frame. It is a no-op on an empty stack.
func (r *ContractRunner) PopRuntime() {
	if len(r.RuntimeStack) == 0 {
		return
	}
	r.RuntimeStack = r.RuntimeStack[:len(r.RuntimeStack)-1]
}

// CurrentRuntime returns the top of the stack, or nil if empty.
func (r *ContractRunner) CurrentRuntime() *EVMRuntime {
	if len(r.RuntimeStack) == 0 {
		return nil
	}
	return r.RuntimeStack[len(r.RuntimeStack)-1]
}
