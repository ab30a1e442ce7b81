// Package cart holds the shopping cart: lines, derived totals, the stock
// boundary used by the UI and write-through persistence.
package cart

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observe"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

type persistedCart struct {
	Items []domain.CartLine `json:"items"`
}

// Store owns the cart lines. Every mutation updates memory, writes the whole
// line list under storage.KeyCart and then notifies subscribers.
type Store struct {
	storage storage.Store
	prices  catalog.PriceBook
	log     *logger.Logger
	hub     observe.Hub[domain.Cart]

	mu      sync.Mutex
	lines   []domain.CartLine
	visible bool
	err     error
}

// New restores the cart from st. A missing, unreadable or malformed entry
// yields an empty cart.
func New(ctx context.Context, st storage.Store, prices catalog.PriceBook, log *logger.Logger) *Store {
	s := &Store{storage: st, prices: prices, log: log}
	s.lines = s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) []domain.CartLine {
	raw, ok, err := s.storage.Get(ctx, storage.KeyCart)
	if err != nil {
		s.log.Warn("failed to read stored cart, starting empty", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var stored persistedCart
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn("stored cart is malformed, starting empty", "error", err)
		return nil
	}

	lines := make([]domain.CartLine, 0, len(stored.Items))
	for _, item := range stored.Items {
		if item.Quantity < 1 {
			s.log.Warn("dropping stored cart line with invalid quantity", "product", item.ProductRef, "quantity", item.Quantity)
			continue
		}
		if i := indexOf(lines, item.ProductRef); i >= 0 {
			lines[i].Quantity += item.Quantity
			continue
		}
		lines = append(lines, item)
	}
	return lines
}

func indexOf(lines []domain.CartLine, ref domain.ProductID) int {
	for i, l := range lines {
		if l.ProductRef == ref {
			return i
		}
	}
	return -1
}

// mutate applies fn under the lock. fn reports whether the lines changed;
// only then is the cart written through.
func (s *Store) mutate(ctx context.Context, fn func() bool) error {
	s.mu.Lock()
	changed := fn()
	var err error
	if changed {
		err = s.persistLocked(ctx)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return err
}

func (s *Store) persistLocked(ctx context.Context) error {
	items := make([]domain.CartLine, len(s.lines))
	copy(items, s.lines)
	payload, err := json.Marshal(persistedCart{Items: items})
	if err != nil {
		s.err = domain.PersistenceError(err, "failed to encode cart")
		return s.err
	}
	if err := s.storage.Set(ctx, storage.KeyCart, string(payload)); err != nil {
		s.log.Error("failed to persist cart", "error", err, "lines", len(items))
		s.err = err
		return err
	}
	s.err = nil
	return nil
}

// Add adds one unit of ref.
func (s *Store) Add(ctx context.Context, ref domain.ProductID) error {
	return s.AddItem(ctx, ref, 1)
}

// AddItem merges qty into the line for ref, appending a new line when absent,
// and raises the visible flag so the cart panel opens.
func (s *Store) AddItem(ctx context.Context, ref domain.ProductID, qty int) error {
	if qty < 1 {
		return domain.ValidationError(domain.ErrInvalidQuantity, "add %d of product %d", qty, ref)
	}
	return s.mutate(ctx, func() bool {
		if i := indexOf(s.lines, ref); i >= 0 {
			s.lines[i].Quantity += qty
		} else {
			s.lines = append(s.lines, domain.CartLine{ProductRef: ref, Quantity: qty})
		}
		s.visible = true
		return true
	})
}

// SetQuantity replaces the quantity of an existing line. qty <= 0 removes
// it. The stock ceiling is not checked here; see CanIncrement.
func (s *Store) SetQuantity(ctx context.Context, ref domain.ProductID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, ref)
	}
	return s.mutate(ctx, func() bool {
		i := indexOf(s.lines, ref)
		if i < 0 || s.lines[i].Quantity == qty {
			return false
		}
		s.lines[i].Quantity = qty
		return true
	})
}

func (s *Store) RemoveItem(ctx context.Context, ref domain.ProductID) error {
	return s.mutate(ctx, func() bool {
		i := indexOf(s.lines, ref)
		if i < 0 {
			return false
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return true
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() bool {
		s.lines = nil
		return true
	})
}

// CanIncrement reports whether one more unit of ref fits in the known stock.
// Products with unknown stock are not limited.
func (s *Store) CanIncrement(ref domain.ProductID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canIncrementLocked(ref)
}

func (s *Store) canIncrementLocked(ref domain.ProductID) bool {
	if s.prices == nil {
		return true
	}
	stock, ok := s.prices.Stock(ref)
	if !ok {
		return true
	}
	current := 0
	if i := indexOf(s.lines, ref); i >= 0 {
		current = s.lines[i].Quantity
	}
	return current < stock
}

// Increment adds one unit of ref unless that would exceed its stock.
func (s *Store) Increment(ctx context.Context, ref domain.ProductID) error {
	var limited bool
	err := s.mutate(ctx, func() bool {
		if !s.canIncrementLocked(ref) {
			limited = true
			return false
		}
		if i := indexOf(s.lines, ref); i >= 0 {
			s.lines[i].Quantity++
		} else {
			s.lines = append(s.lines, domain.CartLine{ProductRef: ref, Quantity: 1})
		}
		return true
	})
	if limited {
		return domain.ValidationError(domain.ErrStockLimit, "product %d", ref)
	}
	return err
}

// Decrement removes one unit of ref, dropping the line at zero.
func (s *Store) Decrement(ctx context.Context, ref domain.ProductID) error {
	return s.mutate(ctx, func() bool {
		i := indexOf(s.lines, ref)
		if i < 0 {
			return false
		}
		if s.lines[i].Quantity <= 1 {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
		} else {
			s.lines[i].Quantity--
		}
		return true
	})
}

// Settle subtracts submitted quantities after an order went through. Lines
// added or raised after the submission snapshot keep their remainder.
func (s *Store) Settle(ctx context.Context, submitted []domain.CartLine) error {
	return s.mutate(ctx, func() bool {
		if len(submitted) == 0 {
			return false
		}
		kept := s.lines[:0]
		for _, l := range s.lines {
			for _, sub := range submitted {
				if sub.ProductRef == l.ProductRef {
					l.Quantity -= sub.Quantity
				}
			}
			if l.Quantity > 0 {
				kept = append(kept, l)
			}
		}
		s.lines = kept
		return true
	})
}

// ToggleVisibility flips the cart panel flag. It is not persisted.
func (s *Store) ToggleVisibility() {
	s.mu.Lock()
	s.visible = !s.visible
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.hub.Publish(snap)
}

func (s *Store) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.lines)
}

// TotalPrice sums quantity times the current unit price. Unknown prices
// count as zero.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPrice(s.lines)
}

func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Cart {
	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	return domain.Cart{
		Lines:      lines,
		TotalItems: totalItems(lines),
		TotalPrice: s.totalPrice(lines),
		Visible:    s.visible,
	}
}

func totalItems(lines []domain.CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) totalPrice(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	if s.prices == nil {
		return total
	}
	for _, l := range lines {
		price, ok := s.prices.UnitPrice(l.ProductRef)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Err returns the last persistence failure, cleared by the next successful write.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe registers fn to receive the cart after every change.
func (s *Store) Subscribe(fn func(domain.Cart)) func() {
	return s.hub.Subscribe(fn)
}
