package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRevealRoundTrip(t *testing.T) {
	proof := []byte("solution payload")
	salt := []byte("random salt")

	c := Commitment(proof, salt)
	assert.True(t, VerifyReveal(c, proof, salt))
	assert.False(t, VerifyReveal(c, proof, []byte("other salt")))
	assert.False(t, VerifyReveal(c, []byte("other proof"), salt))
}

func TestCommitmentBindsSalt(t *testing.T) {
	proof := []byte("same proof")
	assert.NotEqual(t, Commitment(proof, []byte("a")), Commitment(proof, []byte("b")))
}

func TestParseHash(t *testing.T) {
	h := HashProof([]byte("payload"))

	parsed, ok := ParseHash(h.Hex())
	require.True(t, ok)
	assert.Equal(t, h, parsed)

	// Without the 0x prefix too.
	parsed, ok = ParseHash(h.Hex()[2:])
	require.True(t, ok)
	assert.Equal(t, h, parsed)

	_, ok = ParseHash("0x1234")
	assert.False(t, ok)
	_, ok = ParseHash("not hex at all")
	assert.False(t, ok)
}

func TestEncryptDecryptReporterKey(t *testing.T) {
	const keyHex = "6cbed15c793ce57650b9877cf6fa156fbef513c4e6134f022a85b1ffdd59b2a1"

	blob, err := EncryptKey(keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadReporterKeyPrecedence(t *testing.T) {
	got, err := LoadReporterKey(ReporterKeyConfig{RawKey: "0xabcd"})
	require.NoError(t, err)
	assert.Equal(t, "abcd", got)

	_, err = LoadReporterKey(ReporterKeyConfig{})
	assert.Error(t, err)
}
