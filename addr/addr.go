// Package addr computes deployment addresses for the CREATE opcode. This is
// the "address-derivation cryptography" spec.md §1 lists as a helper assumed
// available; it still needs a concrete, tested implementation because
// world.EVMWorld's CREATE handling calls it directly.
package addr

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// NewContractAddress computes the address CREATE assigns to a contract
// deployed by deployer at the given nonce: the low 20 bytes of
// Keccak256(RLP([deployer, nonce])), per EIP-161/Yellow Paper.
func NewContractAddress(deployer common.Address, nonce uint64) (common.Address, error) {
	data, err := rlp.EncodeToBytes([]any{deployer, nonce})
	if err != nil {
		return common.Address{}, err
	}
	hash := crypto.Keccak256(data)
	var out common.Address
	copy(out[:], hash[12:])
	return out, nil
}
