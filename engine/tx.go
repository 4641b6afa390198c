package engine

import "github.com/ethereum/go-ethereum/common"

// TxType identifies the kind of an outgoing transaction emitted by a
// contract mid-execution, or the kind of a top-level queued transaction.
type TxType uint8

const (
	// TxCall is a plain message call (CALL opcode).
	TxCall TxType = iota
	// TxCallCode is the CALLCODE opcode. Recognized on the return path only;
	// the orchestrator refuses it at dispatch (spec.md §9).
	TxCallCode
	// TxDelegateCall is the DELEGATECALL opcode. Same caveat as TxCallCode.
	TxDelegateCall
	// TxCreate is the CREATE opcode.
	TxCreate
	// TxCreate2 is the CREATE2 opcode. Not reduced by the core; dispatch
	// fails with a distinguished unsupported-kind error.
	TxCreate2
)

func (t TxType) String() string {
	switch t {
	case TxCall:
		return "CALL"
	case TxCallCode:
		return "CALLCODE"
	case TxDelegateCall:
		return "DELEGATECALL"
	case TxCreate:
		return "CREATE"
	case TxCreate2:
		return "CREATE2"
	default:
		return "UNKNOWN"
	}
}

// TxResultData mirrors the subset of an EVM transaction's result consumed by
// the orchestrator: the returned bytes and their length (the latter may be
// known even when the engine elects not to materialize ReturnData, e.g. for
// a symbolic result of unknown concrete length).
type TxResultData struct {
	ReturnData     []byte
	ReturnDataSize uint64
}

// Transaction is the engine-facing transaction record. Fields are
// intentionally Value-typed (rather than concrete uint256/[]byte) so that a
// symbolic backend can keep sender, value, and the outgoing sub-call
// bookkeeping fields partially symbolic, the same way EVMTransaction does in
// the upstream executor.
//
// Recipient and Data are left concrete ([]byte / common.Address) because the
// orchestrator must be able to look up the recipient's ContractRunner and
// inspect calldata length without going through the engine; any symbolic
// content embedded in Data is the concern of the (out-of-scope) ABI encoder
// and is resolved entirely inside the seeded Context, not by this struct.
type Transaction struct {
	Origin    Value
	Sender    Value
	Recipient common.Address
	Value     Value
	Data      []byte
	GasPrice  Value
	GasLimit  Value

	// The following fields are only meaningful for outgoing sub-calls
	// (contract(engine).outgoing_transaction); a top-level queued
	// transaction leaves them at their zero values.
	Type      TxType
	RetOffset Value
	RetLen    Value

	// Result is populated by the engine once execution of this transaction
	// completes; it corresponds to contract(engine).transaction.result.
	Result *TxResultData
}

// DeepCopy returns a copy of tx safe to hand to a nested AbstractTx. Value
// fields are immutable so they are shared by reference; Data and Result are
// copied because they may be mutated independently afterwards.
func (tx *Transaction) DeepCopy() *Transaction {
	if tx == nil {
		return nil
	}
	cp := *tx
	if tx.Data != nil {
		cp.Data = append([]byte(nil), tx.Data...)
	}
	if tx.Result != nil {
		res := *tx.Result
		if tx.Result.ReturnData != nil {
			res.ReturnData = append([]byte(nil), tx.Result.ReturnData...)
		}
		cp.Result = &res
	}
	return &cp
}
