// Package corpus bridges the fuzzer's on-disk JSON transaction corpus and
// the symbolic transaction model consumed by the world package: translating
// tagged-union ABI arguments into named symbolic variables on load, and
// rewriting a corpus file from a solver model on store.
package corpus

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/trailofbits/optik-go/engine"
	"github.com/trailofbits/optik-go/optikerrors"
)

// Argument is one fuzzer-produced ABI argument, modeled as a sum type with
// one variant per JSON "tag". Composite variants (AbiArray, AbiArrayDynamic,
// AbiTuple) recurse into nested Arguments, mirroring the tree shape of the
// source JSON.
type Argument interface {
	json.Marshaler

	// ABIType returns the canonical Solidity ABI type string, e.g.
	// "uint256", "bytes4", "(uint256,bool)", "uint256[3]".
	ABIType() string

	// Seed assigns this argument's concrete value(s) into ctx under name
	// (and, for composites, under name suffixed with "_<index>").
	Seed(ctx *engine.Context, name string)

	// Update returns a copy of this argument with every field overridden by
	// model under name, leaving fields absent from model unchanged.
	Update(model *engine.Context, name string) Argument
}

// ValidateType checks that a's ABIType string is a well-formed Solidity ABI
// type according to the canonical ABI type grammar.
func ValidateType(a Argument) error {
	if _, err := ethabi.NewType(a.ABIType(), "", nil); err != nil {
		return fmt.Errorf("corpus: invalid abi type %q: %w", a.ABIType(), err)
	}
	return nil
}

// AbiUInt is an unsigned integer argument of the given bit width.
type AbiUInt struct {
	Bits  int
	Value *uint256.Int
}

func (a AbiUInt) ABIType() string { return fmt.Sprintf("uint%d", a.Bits) }
func (a AbiUInt) Seed(ctx *engine.Context, name string) {
	ctx.Set(name, a.Value.Clone())
}
func (a AbiUInt) Update(model *engine.Context, name string) Argument {
	if v, ok := model.Get(name); ok {
		return AbiUInt{Bits: a.Bits, Value: v.Clone()}
	}
	return a
}
func (a AbiUInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiUInt", Contents: []any{a.Bits, a.Value.Dec()}})
}

// AbiInt is a signed integer argument of the given bit width. Value is a
// big.Int rather than uint256.Int because it may be negative; Seed/Update
// round-trip through two's-complement conversion at Bits width.
type AbiInt struct {
	Bits  int
	Value *big.Int
}

func (a AbiInt) ABIType() string { return fmt.Sprintf("int%d", a.Bits) }
func (a AbiInt) Seed(ctx *engine.Context, name string) {
	ctx.Set(name, bigToTwosComplement(a.Value, a.Bits))
}
func (a AbiInt) Update(model *engine.Context, name string) Argument {
	if v, ok := model.Get(name); ok {
		return AbiInt{Bits: a.Bits, Value: twosComplementToBig(v, a.Bits)}
	}
	return a
}
func (a AbiInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiInt", Contents: []any{a.Bits, a.Value.String()}})
}

// AbiAddress is a 20-byte Ethereum address argument.
type AbiAddress struct {
	Addr common.Address
}

func (a AbiAddress) ABIType() string { return "address" }
func (a AbiAddress) Seed(ctx *engine.Context, name string) {
	ctx.Set(name, new(uint256.Int).SetBytes(a.Addr[:]))
}
func (a AbiAddress) Update(model *engine.Context, name string) Argument {
	if v, ok := model.Get(name); ok {
		return AbiAddress{Addr: common.BytesToAddress(v.Bytes())}
	}
	return a
}
func (a AbiAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiAddress", Contents: lowerHex(a.Addr[:])})
}

// AbiBool is a boolean argument.
type AbiBool struct {
	Value bool
}

func (a AbiBool) ABIType() string { return "bool" }
func (a AbiBool) Seed(ctx *engine.Context, name string) {
	v := new(uint256.Int)
	if a.Value {
		v = uint256.NewInt(1)
	}
	ctx.Set(name, v)
}
func (a AbiBool) Update(model *engine.Context, name string) Argument {
	if v, ok := model.Get(name); ok {
		return AbiBool{Value: !v.IsZero()}
	}
	return a
}
func (a AbiBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiBool", Contents: a.Value})
}

// AbiBytes is a fixed-size byte-string argument (bytesN, 1 <= N <= 32).
// Seed/Update address each octet individually under "{name}_{i}", matching
// the per-byte symbolic variables the upstream ABI encoder creates for
// partially-symbolic byte strings.
type AbiBytes struct {
	Len  int
	Data []byte
}

func (a AbiBytes) ABIType() string { return fmt.Sprintf("bytes%d", a.Len) }
func (a AbiBytes) Seed(ctx *engine.Context, name string) {
	for i, b := range a.Data {
		ctx.Set(fmt.Sprintf("%s_%d", name, i), uint256.NewInt(uint64(b)))
	}
}
func (a AbiBytes) Update(model *engine.Context, name string) Argument {
	data := append([]byte(nil), a.Data...)
	for i := range data {
		if v, ok := model.Get(fmt.Sprintf("%s_%d", name, i)); ok {
			data[i] = byte(v.Uint64())
		}
	}
	return AbiBytes{Len: a.Len, Data: data}
}
func (a AbiBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiBytes", Contents: []any{a.Len, base64.StdEncoding.EncodeToString(a.Data)}})
}

// AbiArray is a fixed-size array of homogeneously-typed elements.
type AbiArray struct {
	Len      int
	ElemType string
	Elems    []Argument
}

func (a AbiArray) ABIType() string { return fmt.Sprintf("%s[%d]", a.ElemType, a.Len) }
func (a AbiArray) Seed(ctx *engine.Context, name string) { seedAll(a.Elems, ctx, name) }
func (a AbiArray) Update(model *engine.Context, name string) Argument {
	return AbiArray{Len: a.Len, ElemType: a.ElemType, Elems: updateAll(a.Elems, model, name)}
}
func (a AbiArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiArray", Contents: []any{a.Len, a.ElemType, a.Elems}})
}

// AbiArrayDynamic is a variable-length array of homogeneously-typed
// elements.
type AbiArrayDynamic struct {
	ElemType string
	Elems    []Argument
}

func (a AbiArrayDynamic) ABIType() string { return fmt.Sprintf("%s[]", a.ElemType) }
func (a AbiArrayDynamic) Seed(ctx *engine.Context, name string) { seedAll(a.Elems, ctx, name) }
func (a AbiArrayDynamic) Update(model *engine.Context, name string) Argument {
	return AbiArrayDynamic{ElemType: a.ElemType, Elems: updateAll(a.Elems, model, name)}
}
func (a AbiArrayDynamic) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiArrayDynamic", Contents: []any{a.ElemType, a.Elems}})
}

// AbiTuple is a heterogeneous fixed sequence of arguments.
type AbiTuple struct {
	Elems []Argument
}

func (a AbiTuple) ABIType() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.ABIType()
	}
	return "(" + strings.Join(parts, ",") + ")"
}
func (a AbiTuple) Seed(ctx *engine.Context, name string) { seedAll(a.Elems, ctx, name) }
func (a AbiTuple) Update(model *engine.Context, name string) Argument {
	return AbiTuple{Elems: updateAll(a.Elems, model, name)}
}
func (a AbiTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{Tag: "AbiTuple", Contents: a.Elems})
}

func seedAll(elems []Argument, ctx *engine.Context, name string) {
	for j, e := range elems {
		e.Seed(ctx, fmt.Sprintf("%s_%d", name, j))
	}
}

func updateAll(elems []Argument, model *engine.Context, name string) []Argument {
	out := make([]Argument, len(elems))
	for j, e := range elems {
		out[j] = e.Update(model, fmt.Sprintf("%s_%d", name, j))
	}
	return out
}

type taggedValue struct {
	Tag      string `json:"tag"`
	Contents any    `json:"contents"`
}

type taggedEnvelope struct {
	Tag      string          `json:"tag"`
	Contents json.RawMessage `json:"contents"`
}

func lowerHex(b []byte) string { return "0x" + hex.EncodeToString(b) }

// decodeArgs unmarshals a JSON array of tagged arguments.
func decodeArgs(raw json.RawMessage) ([]Argument, error) {
	var rawElems []json.RawMessage
	if err := json.Unmarshal(raw, &rawElems); err != nil {
		return nil, err
	}
	out := make([]Argument, len(rawElems))
	for i, re := range rawElems {
		a, err := unmarshalArgument(re)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// unmarshalArgument decodes a single tagged argument, dispatching on "tag"
// the way the upstream Haskell-derived sum type does via pattern matching.
func unmarshalArgument(data []byte) (Argument, error) {
	var env taggedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Tag {
	case "AbiUInt":
		parts, err := splitContents(env.Contents, 2)
		if err != nil {
			return nil, err
		}
		var bits int
		if err := json.Unmarshal(parts[0], &bits); err != nil {
			return nil, err
		}
		val, err := decodeUint(parts[1])
		if err != nil {
			return nil, err
		}
		return AbiUInt{Bits: bits, Value: val}, nil

	case "AbiInt":
		parts, err := splitContents(env.Contents, 2)
		if err != nil {
			return nil, err
		}
		var bits int
		if err := json.Unmarshal(parts[0], &bits); err != nil {
			return nil, err
		}
		val, err := decodeBigInt(parts[1])
		if err != nil {
			return nil, err
		}
		return AbiInt{Bits: bits, Value: val}, nil

	case "AbiAddress":
		var s string
		if err := json.Unmarshal(env.Contents, &s); err != nil {
			return nil, err
		}
		return AbiAddress{Addr: common.HexToAddress(s)}, nil

	case "AbiBool":
		var b bool
		if err := json.Unmarshal(env.Contents, &b); err != nil {
			return nil, err
		}
		return AbiBool{Value: b}, nil

	case "AbiBytes":
		parts, err := splitContents(env.Contents, 2)
		if err != nil {
			return nil, err
		}
		var length int
		var b64 string
		if err := json.Unmarshal(parts[0], &length); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[1], &b64); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		return AbiBytes{Len: length, Data: data}, nil

	case "AbiArray":
		parts, err := splitContents(env.Contents, 3)
		if err != nil {
			return nil, err
		}
		var length int
		var elemType string
		if err := json.Unmarshal(parts[0], &length); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts[1], &elemType); err != nil {
			return nil, err
		}
		elems, err := decodeArgs(parts[2])
		if err != nil {
			return nil, err
		}
		return AbiArray{Len: length, ElemType: elemType, Elems: elems}, nil

	case "AbiArrayDynamic":
		parts, err := splitContents(env.Contents, 2)
		if err != nil {
			return nil, err
		}
		var elemType string
		if err := json.Unmarshal(parts[0], &elemType); err != nil {
			return nil, err
		}
		elems, err := decodeArgs(parts[1])
		if err != nil {
			return nil, err
		}
		return AbiArrayDynamic{ElemType: elemType, Elems: elems}, nil

	case "AbiTuple":
		elems, err := decodeArgs(env.Contents)
		if err != nil {
			return nil, err
		}
		return AbiTuple{Elems: elems}, nil

	default:
		return nil, optikerrors.Echidna(optikerrors.ErrUnsupportedArgTag, "%q", env.Tag)
	}
}

func splitContents(raw json.RawMessage, n int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) != n {
		return nil, fmt.Errorf("corpus: expected %d contents elements, got %d", n, len(parts))
	}
	return parts, nil
}

func decodeUint(raw json.RawMessage) (*uint256.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseUint256(s)
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return uint256.NewInt(n), nil
}

func parseUint256(s string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if err := v.SetFromHex(s); err != nil {
			return nil, err
		}
		return v, nil
	}
	if err := v.SetFromDecimal(s); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeBigInt(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("corpus: invalid integer %q", s)
		}
		return v, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return big.NewInt(n), nil
}

// bigToTwosComplement wraps v (which may be negative) into its unsigned
// two's-complement representation at the given bit width.
func bigToTwosComplement(v *big.Int, bits int) *uint256.Int {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	raw := new(big.Int).Mod(v, mod)
	u, _ := uint256.FromBig(raw)
	return u
}

// twosComplementToBig interprets v's low `bits` bits as a signed integer.
func twosComplementToBig(v *uint256.Int, bits int) *big.Int {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	raw := new(big.Int).Mod(v.ToBig(), mod)
	half := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if raw.Cmp(half) >= 0 {
		raw.Sub(raw, mod)
	}
	return raw
}
