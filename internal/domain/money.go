package domain

import "github.com/shopspring/decimal"

// Round2 rounds half away from zero to two decimal places
func Round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

// SumAmounts adds amounts without accumulating binary floating point drift
func SumAmounts(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}
