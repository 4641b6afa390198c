package corpus

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeCall produces the call data for a Solidity function invocation. It
// is a package-level variable rather than a plain function so a caller that
// owns a real symbolic ABI encoder (the collaborator spec.md treats as an
// out-of-scope black box) can swap in a fully symbolic implementation;
// defaultEncodeCall is a concrete, concolic-only packer adequate for
// corpus-driven replay against accounts/abi.
var EncodeCall = defaultEncodeCall

// defaultEncodeCall packs name(args...) using the standard Solidity ABI:
// a 4-byte selector (keccak256 of the canonical signature) followed by the
// packed argument data. It packs the scalar variants (AbiUInt, AbiInt,
// AbiAddress, AbiBool, AbiBytes); the composite variants (AbiArray,
// AbiArrayDynamic, AbiTuple) are not packed and return an error.
func defaultEncodeCall(name string, args []Argument) ([]byte, error) {
	typeStrs := make([]string, len(args))
	ethArgs := make(ethabi.Arguments, len(args))
	values := make([]any, len(args))

	for i, a := range args {
		if err := ValidateType(a); err != nil {
			return nil, err
		}
		typeStrs[i] = a.ABIType()
		typ, err := ethabi.NewType(typeStrs[i], "", nil)
		if err != nil {
			return nil, err
		}
		ethArgs[i] = ethabi.Argument{Type: typ}

		v, err := packValue(a)
		if err != nil {
			return nil, fmt.Errorf("corpus: packing arg %d (%s): %w", i, typeStrs[i], err)
		}
		values[i] = v
	}

	packed, err := ethArgs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("corpus: abi.Pack(%s(%s)): %w", name, strings.Join(typeStrs, ","), err)
	}

	signature := fmt.Sprintf("%s(%s)", name, strings.Join(typeStrs, ","))
	selector := crypto.Keccak256([]byte(signature))[:4]
	return append(selector, packed...), nil
}

// packValue converts an Argument into the concrete Go value accounts/abi
// expects for its ABIType.
func packValue(a Argument) (any, error) {
	switch v := a.(type) {
	case AbiUInt:
		return sizedUint(v.Value.ToBig(), v.Bits)
	case AbiInt:
		return sizedInt(v.Value, v.Bits)
	case AbiAddress:
		return v.Addr, nil
	case AbiBool:
		return v.Value, nil
	case AbiBytes:
		return fixedByteArray(v.Data, v.Len)
	case AbiArray, AbiArrayDynamic, AbiTuple:
		return nil, fmt.Errorf("composite argument type %q not supported by the default packer", a.ABIType())
	default:
		return nil, fmt.Errorf("unrecognized argument type %T", a)
	}
}

func sizedUint(v *big.Int, bits int) (any, error) {
	switch {
	case bits <= 8:
		return uint8(v.Uint64()), nil
	case bits <= 16:
		return uint16(v.Uint64()), nil
	case bits <= 32:
		return uint32(v.Uint64()), nil
	case bits <= 64:
		return v.Uint64(), nil
	default:
		return v, nil
	}
}

func sizedInt(v *big.Int, bits int) (any, error) {
	switch {
	case bits <= 8:
		return int8(v.Int64()), nil
	case bits <= 16:
		return int16(v.Int64()), nil
	case bits <= 32:
		return int32(v.Int64()), nil
	case bits <= 64:
		return v.Int64(), nil
	default:
		return v, nil
	}
}

func fixedByteArray(data []byte, n int) (any, error) {
	if len(data) > n {
		return nil, fmt.Errorf("bytes%d argument carries %d bytes", n, len(data))
	}
	arr := reflect.New(reflect.ArrayOf(n, reflect.TypeOf(byte(0)))).Elem()
	reflect.Copy(arr, reflect.ValueOf(data))
	return arr.Interface(), nil
}
