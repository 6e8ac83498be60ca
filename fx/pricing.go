// Package fx implements the desk tools offered to the trading assistant:
// forward pricing, credit and risk checks, client lookups and trade
// booking for USD/GBP 3M forwards.
package fx

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Desk constants for the single supported product.
const (
	SpotUSDGBP  = 1.2725
	TenorDays   = 90
	Tenor3M     = "3M"
	PairUSDGBP  = "USDGBP"
	MaxNotional = 75_000_000.0
)

// Forward returns the all-in forward price by interest rate parity (GBP on
// an ACT/365 basis, USD on ACT/360) and the forward points.
func Forward(spot, usdRate, gbpRate float64, days int) (allIn, points float64) {
	d := float64(days)
	allIn = spot * ((1 + gbpRate*(d/365)) / (1 + usdRate*(d/360)))
	allIn = round(allIn, 5)
	points = round((allIn-spot)*10000, 1)
	return allIn, points
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

var printer = message.NewPrinter(language.English)

// amount formats a notional with thousands separators and two decimals.
func amount(v float64) string {
	return printer.Sprintf("%.2f", v)
}
