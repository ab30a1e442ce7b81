package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderLine struct {
	ProductRef            ProductID
	Quantity              int
	UnitPriceAtSubmission decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtSubmission.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderRequest is the immutable payload sent to create a remote order.
type OrderRequest struct {
	Lines          []OrderLine
	IdempotencyKey string
}

func (r OrderRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// CartLines returns the productRef/quantity pairs the request was built from.
func (r OrderRequest) CartLines() []CartLine {
	lines := make([]CartLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, CartLine{ProductRef: l.ProductRef, Quantity: l.Quantity})
	}
	return lines
}

type OrderResult struct {
	OrderID             int64
	ConfirmationMessage string
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDIENTE"
	OrderStatusConfirmed OrderStatus = "CONFIRMADO"
	OrderStatusShipped   OrderStatus = "ENVIADO"
	OrderStatusDelivered OrderStatus = "ENTREGADO"
	OrderStatusCancelled OrderStatus = "CANCELADO"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func OrderStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderStatuses...)
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	for _, known := range orderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts a status name in any case.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, raw)
	}
	return s, nil
}

// Order is the listing view of a placed order.
type Order struct {
	ID     int64
	UserID int64
	Date   time.Time
	Total  decimal.Decimal
	Status OrderStatus
	Lines  []OrderLine
}
