package invoice

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Recalculate derives line amounts and every total from the line items,
// tax rate and discount. Totals are never set any other way.
func (inv *Invoice) Recalculate() {
	subtotal := decimal.Zero
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.Amount = line.Quantity.Mul(line.Rate).Round(AmountPlaces)
		subtotal = subtotal.Add(line.Amount)
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = subtotal.Mul(inv.TaxRate).Div(hundred).Round(AmountPlaces)
	inv.Total = inv.Subtotal.Add(inv.TaxAmount).Sub(inv.Discount)
}
