package orders

import "math"

// Pricing computes shipping and tax for a subtotal.
type Pricing struct {
	FlatShippingCost      float64
	FreeShippingThreshold float64
	TaxRate               float64
}

func (p Pricing) Charges(subtotal float64) (shipping, tax float64) {
	if subtotal < p.FreeShippingThreshold {
		shipping = p.FlatShippingCost
	}
	tax = roundCents(subtotal * p.TaxRate)
	return shipping, tax
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
