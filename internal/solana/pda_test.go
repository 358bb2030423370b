package solana

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A real pump.fun mint address shape (32 bytes base58).
const testMint = "So11111111111111111111111111111111111111112"

func TestBondingCurveAddress_OffCurveAndDeterministic(t *testing.T) {
	addr, err := BondingCurveAddress(testMint)
	require.NoError(t, err)

	raw, err := base58.Decode(addr)
	require.NoError(t, err)
	require.Len(t, raw, 32)
	assert.False(t, isOnCurve(raw), "program address must be off the ed25519 curve")

	again, err := BondingCurveAddress(testMint)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestBondingCurveAddress_DiffersPerMint(t *testing.T) {
	a, err := BondingCurveAddress(testMint)
	require.NoError(t, err)
	b, err := BondingCurveAddress(PumpFunProgram)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFindProgramAddress_BumpMatchesSearch(t *testing.T) {
	mint, err := DecodePublicKey(testMint)
	require.NoError(t, err)

	addr, bump, err := FindProgramAddress([][]byte{[]byte(BondingCurveSeed), mint}, PumpFunProgram)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)
	assert.Greater(t, bump, uint8(0))
}

func TestDecodePublicKey_Invalid(t *testing.T) {
	_, err := DecodePublicKey("not-base58-0OIl")
	assert.Error(t, err)

	_, err = DecodePublicKey("abc")
	assert.Error(t, err, "short keys are rejected")

	_, err = BondingCurveAddress("")
	assert.Error(t, err)
}

func TestIsOnCurve_WrongLength(t *testing.T) {
	assert.False(t, isOnCurve([]byte{1, 2, 3}))
}
