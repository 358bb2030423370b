package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and account addresses.
const (
	// PumpFunProgram is the pump.fun launchpad program.
	PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	// BondingCurveSeed prefixes the bonding-curve PDA seeds.
	BondingCurveSeed = "bonding-curve"
)

const pdaMarker = "ProgramDerivedAddress"

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("no viable bump seed")

// DecodePublicKey decodes a base58 address and checks its length.
func DecodePublicKey(address string) ([]byte, error) {
	key, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", address, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("decode %q: expected 32 bytes, got %d", address, len(key))
	}
	return key, nil
}

// FindProgramAddress derives a program address from seeds, searching bumps from 255 down.
// It returns the base58 address and the bump used.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodePublicKey(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := 255; bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, program...)
		data = append(data, pdaMarker...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// BondingCurveAddress derives the pump.fun bonding-curve account for mint.
func BondingCurveAddress(mint string) (string, error) {
	mintKey, err := DecodePublicKey(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte(BondingCurveSeed), mintKey}, PumpFunProgram)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
