package execution

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Token and SOL decimals on pump.fun.
const (
	lamportsPerSOL   = 1_000_000_000
	tokenUnitsPerOne = 1_000_000
)

// Bonding curve account layout: 8-byte discriminator, five u64 fields, complete flag.
const (
	curveVirtualTokenOffset = 8
	curveVirtualSolOffset   = 16
	curveRealTokenOffset    = 24
	curveRealSolOffset      = 32
	curveSupplyOffset       = 40
	curveCompleteOffset     = 48
	curveMinLength          = 49
)

// ErrCurveComplete is returned once a token has graduated off its bonding curve.
var ErrCurveComplete = errors.New("bonding curve complete")

// AccountReader is the RPC subset the price source needs.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// BondingCurve is the decoded state of a pump.fun bonding-curve account.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// Price returns SOL per whole token implied by the virtual reserves.
func (c BondingCurve) Price() (decimal.Decimal, error) {
	if c.VirtualTokenReserves == 0 {
		return decimal.Zero, errors.New("zero virtual token reserves")
	}
	sol := decimal.NewFromInt(int64(c.VirtualSolReserves)).Div(decimal.NewFromInt(lamportsPerSOL))
	tokens := decimal.NewFromInt(int64(c.VirtualTokenReserves)).Div(decimal.NewFromInt(tokenUnitsPerOne))
	return sol.Div(tokens), nil
}

// DecodeBondingCurve decodes raw account data.
func DecodeBondingCurve(data []byte) (BondingCurve, error) {
	if len(data) < curveMinLength {
		return BondingCurve{}, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}
	return BondingCurve{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[curveVirtualTokenOffset:]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[curveVirtualSolOffset:]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[curveRealTokenOffset:]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[curveRealSolOffset:]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[curveSupplyOffset:]),
		Complete:             data[curveCompleteOffset] != 0,
	}, nil
}

// BondingCurvePriceSource quotes pump.fun tokens from their bonding-curve account.
type BondingCurvePriceSource struct {
	rpc AccountReader
}

// NewBondingCurvePriceSource creates a price source over rpc.
func NewBondingCurvePriceSource(rpc AccountReader) *BondingCurvePriceSource {
	return &BondingCurvePriceSource{rpc: rpc}
}

// CurrentPrice implements PriceSource.
func (s *BondingCurvePriceSource) CurrentPrice(ctx context.Context, mint string) (float64, error) {
	curve, err := s.Curve(ctx, mint)
	if err != nil {
		return 0, err
	}
	if curve.Complete {
		return 0, &domain.PriceError{Mint: mint, Err: ErrCurveComplete}
	}
	price, err := curve.Price()
	if err != nil {
		return 0, &domain.PriceError{Mint: mint, Err: err}
	}
	return price.InexactFloat64(), nil
}

// Curve fetches and decodes the bonding-curve account for mint.
func (s *BondingCurvePriceSource) Curve(ctx context.Context, mint string) (BondingCurve, error) {
	addr, err := solana.BondingCurveAddress(mint)
	if err != nil {
		return BondingCurve{}, &domain.PriceError{Mint: mint, Err: err}
	}

	info, err := s.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return BondingCurve{}, &domain.PriceError{Mint: mint, Err: err}
	}
	if info == nil {
		return BondingCurve{}, &domain.PriceError{Mint: mint, Err: fmt.Errorf("bonding curve %s not found", addr)}
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return BondingCurve{}, &domain.PriceError{Mint: mint, Err: fmt.Errorf("decode account data: %w", err)}
	}
	curve, err := DecodeBondingCurve(data)
	if err != nil {
		return BondingCurve{}, &domain.PriceError{Mint: mint, Err: err}
	}
	return curve, nil
}

var _ PriceSource = (*BondingCurvePriceSource)(nil)
