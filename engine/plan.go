package engine

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/karollnt/goldstory-backend/config"
)

// settlementDecimals is the settlement asset's fixed precision (USDC).
const settlementDecimals = 6

// DistributionPlan fixes the three-way split of one incoming payment, derived
// once from the human-scale amount. Broker and swap shares are truncated to
// the settlement asset's precision; the retained share is the exact residual,
// so BrokerShare + SwapShare + RetainedShare always equals the source amount
// and rounding dust stays in the operating account.
type DistributionPlan struct {
	AmountUSDC    decimal.Decimal
	BrokerShare   decimal.Decimal
	SwapShare     decimal.Decimal
	RetainedShare decimal.Decimal
}

// NewDistributionPlan computes the split for a raw settlement-asset amount
// under the configured ratios.
func NewDistributionPlan(amountRaw *big.Int, policy config.Policy) DistributionPlan {
	amount := decimal.NewFromBigInt(amountRaw, -settlementDecimals)

	broker := amount.Mul(policy.BrokerRatioDecimal()).Truncate(settlementDecimals)
	swap := amount.Mul(policy.SwapRatioDecimal()).Truncate(settlementDecimals)
	retained := amount.Sub(broker).Sub(swap)

	return DistributionPlan{
		AmountUSDC:    amount,
		BrokerShare:   broker,
		SwapShare:     swap,
		RetainedShare: retained,
	}
}

// BrokerShareRaw returns the broker share in raw settlement-asset units.
func (p DistributionPlan) BrokerShareRaw() *big.Int {
	return p.BrokerShare.Shift(settlementDecimals).BigInt()
}

// SwapShareRaw returns the swap share in raw settlement-asset units.
func (p DistributionPlan) SwapShareRaw() *big.Int {
	return p.SwapShare.Shift(settlementDecimals).BigInt()
}
