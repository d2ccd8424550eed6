// Package pricing считает стоимость custom date и выплату tastemaker.
package pricing

import "math"

const (
	stripePercentFee = 0.029
	stripeFixedFee   = 0.30 // в долларах
	platformShare    = 0.20
)

// roundHalfUp округление до целого, .5 вверх
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// CustomDatePrice итоговая цена в центах с учётом комиссии Stripe:
// сумма за остановки переводится в доллары, делится на (1 - 2.9%),
// к результату добавляются фиксированные $0.30.
// CustomDatePrice(1500, 3) == 4664.
func CustomDatePrice(perStopCents int64, numStops int) int64 {
	dollars := float64(perStopCents*int64(numStops)) / 100
	gross := dollars/(1-stripePercentFee) + stripeFixedFee
	return roundHalfUp(gross * 100)
}

// CustomDatePriceWithoutStripeFee сумма за остановки в целых долларах
func CustomDatePriceWithoutStripeFee(perStopCents int64, numStops int) int64 {
	return roundHalfUp(float64(perStopCents*int64(numStops)) / 100)
}

// TastemakerPayoutCents выплата tastemaker: 80% от цены без комиссии Stripe
func TastemakerPayoutCents(perStopCents int64, numStops int) int64 {
	dollars := CustomDatePriceWithoutStripeFee(perStopCents, numStops)
	return roundHalfUp(float64(dollars) * 100 * (1 - platformShare))
}
