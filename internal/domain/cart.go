package domain

import "github.com/shopspring/decimal"

type ProductID int64

type Product struct {
	ID    ProductID
	Name  string
	Brand string
	Price decimal.Decimal
	Stock int
}

// CartLine is one product/quantity pairing. Quantity is always >= 1 inside a cart.
type CartLine struct {
	ProductRef ProductID `json:"productRef"`
	Quantity   int       `json:"quantity"`
}

// Cart is a read view of the cart with totals already derived.
type Cart struct {
	Lines      []CartLine
	TotalItems int
	TotalPrice decimal.Decimal
	Visible    bool
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Quantity returns the quantity held for ref, 0 when absent.
func (c Cart) Quantity(ref ProductID) int {
	for _, l := range c.Lines {
		if l.ProductRef == ref {
			return l.Quantity
		}
	}
	return 0
}
