package withdrawal

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type Fee struct {
	FeeAmount decimal.Decimal `json:"feeAmount"`
	NetAmount decimal.Decimal `json:"netAmount"`
}

// ApplyFee treats feePercent as a percentage: 2.5 means 2.5%.
func ApplyFee(amount, feePercent decimal.Decimal) Fee {
	fee := amount.Mul(feePercent).Div(hundred)
	return Fee{
		FeeAmount: fee,
		NetAmount: amount.Sub(fee),
	}
}
