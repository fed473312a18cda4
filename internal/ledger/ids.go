package ledger

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identifier derivation. Every id is a one-way keccak256 hash so two parties
// who agree on the inputs always agree on the id without coordination:
//
//	conditionID = keccak(oracle || questionID || outcomeCount)
//	collectionID = keccak(conditionID || indexSet)
//	positionID   = keccak(collateral || collectionID)
//
// Index sets map outcomes to powers of two: outcome i is bit 1<<i.

// ConditionID derives the condition identifier.
func ConditionID(oracle string, questionID common.Hash, outcomeCount uint) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		[]byte(oracle),
		questionID.Bytes(),
		uintBytes(uint64(outcomeCount)),
	))
}

// CollectionID derives the collection identifier for one outcome index set.
func CollectionID(conditionID common.Hash, indexSet uint64) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		conditionID.Bytes(),
		uintBytes(indexSet),
	))
}

// PositionID derives the fungible-unit identifier for a collateral identity
// and a collection.
func PositionID(collateral string, collectionID common.Hash) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		[]byte(collateral),
		collectionID.Bytes(),
	))
}

// uintBytes encodes v as a 32-byte big-endian word, matching how the ids
// would be packed on chain.
func uintBytes(v uint64) []byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], v)
	return buf[:]
}
