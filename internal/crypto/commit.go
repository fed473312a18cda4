// Package crypto provides the keccak256 commitment scheme used by
// commit-reveal markets and encrypted storage for the oracle reporter key.
package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Commitment returns keccak256(proof || salt). Publishing it before the
// underlying value proves the value was fixed beforehand.
func Commitment(proof, salt []byte) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(proof, salt))
}

// HashProof returns keccak256(payload), the proof hash stored on direct-proof
// markets and bounty range submissions.
func HashProof(payload []byte) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(payload))
}

// VerifyReveal recomputes the commitment from the revealed (proof, salt) pair
// and compares it against the stored value.
func VerifyReveal(commitment common.Hash, proof, salt []byte) bool {
	return Commitment(proof, salt) == commitment
}

// ParseHash decodes a hex string (with or without 0x prefix) into a 32-byte
// hash. Inputs of the wrong length are rejected rather than zero-padded.
func ParseHash(s string) (common.Hash, bool) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}
