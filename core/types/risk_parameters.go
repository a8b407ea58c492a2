package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Decimals is the denominator for ratios, fees and utilisation.
const Decimals uint64 = 10_000

// SplitDenominator is the denominator for commission splits.
const SplitDenominator uint64 = 100

var (
	riskSafeMode      = field{name: "safeMode", offset: 0, width: 4}
	riskNotionalFee   = field{name: "notionalFee", offset: 4, width: 14}
	riskPremiumFee    = field{name: "premiumFee", offset: 18, width: 14}
	riskProtocolSplit = field{name: "protocolSplit", offset: 32, width: 7}
	riskBuilderSplit  = field{name: "builderSplit", offset: 39, width: 7}
	riskTickDelta     = field{name: "tickDeltaLiquidation", offset: 46, width: 13}
	riskMaxSpread     = field{name: "maxSpread", offset: 59, width: 22}
	riskMaxLegs       = field{name: "maxLegs", offset: 81, width: 7}
	riskFeeRecipient  = field{name: "feeRecipient", offset: 96, width: 160}
)

// RiskSettings is the unpacked form of RiskParameters.
type RiskSettings struct {
	SafeMode             uint8
	NotionalFee          uint64
	PremiumFee           uint64
	ProtocolSplit        uint64
	BuilderSplit         uint64
	TickDeltaLiquidation uint64
	MaxSpread            uint64
	MaxLegs              uint64
	FeeRecipient         common.Address
}

// RiskParameters is the per-request packed parameter word.
type RiskParameters struct {
	word uint256.Int
}

// NewRiskParameters validates and packs the settings. The protocol and
// builder splits may not exceed the whole between them; the remainder is
// burned.
func NewRiskParameters(s RiskSettings) (RiskParameters, error) {
	if s.NotionalFee > Decimals || s.PremiumFee > Decimals {
		return RiskParameters{}, fmt.Errorf("%w: fee above %d", ErrInvalidParameters, Decimals)
	}
	if s.ProtocolSplit+s.BuilderSplit > SplitDenominator {
		return RiskParameters{}, fmt.Errorf("%w: protocol split %d + builder split %d exceeds %d",
			ErrInvalidParameters, s.ProtocolSplit, s.BuilderSplit, SplitDenominator)
	}
	if s.MaxLegs == 0 {
		return RiskParameters{}, fmt.Errorf("%w: max legs must be positive", ErrInvalidParameters)
	}
	var p RiskParameters
	sets := []struct {
		f field
		v uint64
	}{
		{riskSafeMode, uint64(s.SafeMode)},
		{riskNotionalFee, s.NotionalFee},
		{riskPremiumFee, s.PremiumFee},
		{riskProtocolSplit, s.ProtocolSplit},
		{riskBuilderSplit, s.BuilderSplit},
		{riskTickDelta, s.TickDeltaLiquidation},
		{riskMaxSpread, s.MaxSpread},
		{riskMaxLegs, s.MaxLegs},
	}
	for _, set := range sets {
		if err := set.f.setUint64(&p.word, set.v); err != nil {
			return RiskParameters{}, err
		}
	}
	recipient := new(big.Int).SetBytes(s.FeeRecipient.Bytes())
	if err := riskFeeRecipient.setBig(&p.word, recipient); err != nil {
		return RiskParameters{}, err
	}
	return p, nil
}

// RiskParametersFromBytes decodes a stored word.
func RiskParametersFromBytes(b []byte) (RiskParameters, error) {
	w, err := wordFromBytes("risk parameters", b)
	if err != nil {
		return RiskParameters{}, err
	}
	return RiskParameters{word: w}, nil
}

func (p RiskParameters) SafeMode() uint8 { return uint8(riskSafeMode.getUint64(&p.word)) }
func (p RiskParameters) NotionalFee() uint64 { return riskNotionalFee.getUint64(&p.word) }
func (p RiskParameters) PremiumFee() uint64 { return riskPremiumFee.getUint64(&p.word) }
func (p RiskParameters) ProtocolSplit() uint64 { return riskProtocolSplit.getUint64(&p.word) }
func (p RiskParameters) BuilderSplit() uint64 { return riskBuilderSplit.getUint64(&p.word) }
func (p RiskParameters) TickDeltaLiquidation() uint64 { return riskTickDelta.getUint64(&p.word) }
func (p RiskParameters) MaxSpread() uint64 { return riskMaxSpread.getUint64(&p.word) }
func (p RiskParameters) MaxLegs() uint64 { return riskMaxLegs.getUint64(&p.word) }

// FeeRecipient returns the full 160-bit recipient.
func (p RiskParameters) FeeRecipient() common.Address {
	return common.BigToAddress(riskFeeRecipient.getBig(&p.word))
}

// BurnSplit is the implicit share of commission that is burned.
func (p RiskParameters) BurnSplit() uint64 {
	return SplitDenominator - p.ProtocolSplit() - p.BuilderSplit()
}

func (p RiskParameters) Settings() RiskSettings {
	return RiskSettings{
		SafeMode:             p.SafeMode(),
		NotionalFee:          p.NotionalFee(),
		PremiumFee:           p.PremiumFee(),
		ProtocolSplit:        p.ProtocolSplit(),
		BuilderSplit:         p.BuilderSplit(),
		TickDeltaLiquidation: p.TickDeltaLiquidation(),
		MaxSpread:            p.MaxSpread(),
		MaxLegs:              p.MaxLegs(),
		FeeRecipient:         p.FeeRecipient(),
	}
}

func (p RiskParameters) Bytes32() [WordSize]byte { return p.word.Bytes32() }

func (p RiskParameters) String() string {
	return fmt.Sprintf("RiskParameters{safeMode=%d notionalFee=%d premiumFee=%d split=%d/%d/%d tickDelta=%d maxSpread=%d maxLegs=%d recipient=%s}",
		p.SafeMode(), p.NotionalFee(), p.PremiumFee(), p.ProtocolSplit(), p.BuilderSplit(), p.BurnSplit(),
		p.TickDeltaLiquidation(), p.MaxSpread(), p.MaxLegs(), p.FeeRecipient().Hex())
}
