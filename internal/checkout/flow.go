// Package checkout turns the cart into a remote order: validation, the
// identity check, a single submission at a time and the confirmation message
// shown afterwards.
package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observe"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
)

const DefaultMessageTTL = 5 * time.Second

type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	default:
		return "idle"
	}
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, userID int64, req domain.OrderRequest) (*domain.Order, error)
}

type Cart interface {
	Snapshot() domain.Cart
	Clear(ctx context.Context) error
	Settle(ctx context.Context, submitted []domain.CartLine) error
}

type SessionSource interface {
	Session() domain.Session
}

// EventSink receives order outcomes. Publishing failures never affect the order.
type EventSink interface {
	OrderPlaced(ctx context.Context, userID int64, req domain.OrderRequest, result domain.OrderResult) error
	OrderFailed(ctx context.Context, userID int64, req domain.OrderRequest, cause error) error
}

type Status struct {
	State   State
	Message string
	Err     error
	Result  *domain.OrderResult
}

type Config struct {
	MessageTTL time.Duration
	// KeepLateAdditions settles only the submitted quantities on success
	// instead of emptying the cart.
	KeepLateAdditions bool
}

type Flow struct {
	orders   OrderCreator
	cart     Cart
	sessions SessionSource
	prices   catalog.PriceBook
	events   EventSink
	log      *logger.Logger
	ttl      time.Duration
	keepLate bool
	newKey   func() string
	schedule func(d time.Duration, f func()) (stop func() bool)

	hub observe.Hub[Status]

	mu      sync.Mutex
	state   State
	message string
	err     error
	result  *domain.OrderResult
	gen     uint64
	stop    func() bool
}

// NewFlow wires the flow. events may be nil.
func NewFlow(cfg Config, orders OrderCreator, cart Cart, sessions SessionSource, prices catalog.PriceBook, events EventSink, log *logger.Logger) *Flow {
	ttl := cfg.MessageTTL
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	return &Flow{
		orders:   orders,
		cart:     cart,
		sessions: sessions,
		prices:   prices,
		events:   events,
		log:      log,
		ttl:      ttl,
		keepLate: cfg.KeepLateAdditions,
		newKey:   uuid.NewString,
		schedule: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Submit places an order for the current cart. Only one submission runs at a
// time; a second call while one is pending fails with ErrSubmissionInFlight.
// Any backend rejection comes back as a network error with the cart intact.
func (f *Flow) Submit(ctx context.Context) (domain.OrderResult, error) {
	if err := f.begin(); err != nil {
		return domain.OrderResult{}, err
	}

	cart := f.cart.Snapshot()
	if cart.IsEmpty() {
		return f.reject(domain.ValidationError(domain.ErrEmptyCart, "checkout"))
	}
	session := f.sessions.Session()
	if !session.Authenticated() {
		return f.reject(domain.AuthError(domain.ErrLoginRequired, "checkout"))
	}
	req, err := f.buildRequest(cart)
	if err != nil {
		return f.reject(err)
	}

	f.update(func() { f.state = StateSubmitting })
	log := f.log.WithContext(ctx).With("user_id", session.Identity.ID, "idempotency_key", req.IdempotencyKey)
	log.Info("submitting order", "lines", len(req.Lines), "total", req.Total().String())

	order, err := f.orders.CreateOrder(ctx, session.Identity.ID, req)
	if err != nil {
		if !domain.IsKind(err, domain.KindNetwork) {
			err = domain.NetworkError(err, "checkout")
		}
		log.Warn("order submission failed", "error", err)
		f.update(func() {
			f.state = StateIdle
			f.err = err
		})
		if f.events != nil {
			if perr := f.events.OrderFailed(ctx, session.Identity.ID, req, err); perr != nil {
				log.Warn("failed to publish order failure", "error", perr)
			}
		}
		return domain.OrderResult{}, err
	}

	result := domain.OrderResult{
		OrderID:             order.ID,
		ConfirmationMessage: fmt.Sprintf("Order #%d saved successfully", order.ID),
	}
	if err := f.settle(ctx, req); err != nil {
		log.Error("order placed but cart settlement failed", "order_id", order.ID, "error", err)
	}

	f.update(func() {
		f.state = StateSucceeded
		f.message = result.ConfirmationMessage
		f.result = &result
		f.armLocked()
	})
	log.Info("order placed", "order_id", order.ID)

	if f.events != nil {
		if perr := f.events.OrderPlaced(ctx, session.Identity.ID, req, result); perr != nil {
			log.Warn("failed to publish order placed", "order_id", order.ID, "error", perr)
		}
	}
	return result, nil
}

func (f *Flow) settle(ctx context.Context, req domain.OrderRequest) error {
	if f.keepLate {
		return f.cart.Settle(ctx, req.CartLines())
	}
	return f.cart.Clear(ctx)
}

func (f *Flow) begin() error {
	f.mu.Lock()
	if f.state == StateValidating || f.state == StateSubmitting {
		f.mu.Unlock()
		return domain.ValidationError(domain.ErrSubmissionInFlight, "checkout")
	}
	f.state = StateValidating
	f.err = nil
	snap := f.statusLocked()
	f.mu.Unlock()

	f.hub.Publish(snap)
	return nil
}

func (f *Flow) reject(err error) (domain.OrderResult, error) {
	f.update(func() {
		f.state = StateIdle
		f.err = err
	})
	return domain.OrderResult{}, err
}

func (f *Flow) buildRequest(cart domain.Cart) (domain.OrderRequest, error) {
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		price, ok := f.prices.UnitPrice(l.ProductRef)
		if !ok {
			return domain.OrderRequest{}, domain.ValidationError(domain.ErrUnknownPrice, "product %d", l.ProductRef)
		}
		lines = append(lines, domain.OrderLine{
			ProductRef:            l.ProductRef,
			Quantity:              l.Quantity,
			UnitPriceAtSubmission: price,
		})
	}
	return domain.OrderRequest{Lines: lines, IdempotencyKey: f.newKey()}, nil
}

// armLocked schedules the confirmation message to clear. A timer left from an
// earlier message sees a newer generation and does nothing.
func (f *Flow) armLocked() {
	if f.stop != nil {
		f.stop()
	}
	f.gen++
	gen := f.gen
	f.stop = f.schedule(f.ttl, func() { f.expire(gen) })
}

func (f *Flow) expire(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.clearLocked()
	snap := f.statusLocked()
	f.mu.Unlock()
	f.hub.Publish(snap)
}

func (f *Flow) clearLocked() {
	f.message = ""
	f.result = nil
	f.stop = nil
	if f.state == StateSucceeded {
		f.state = StateIdle
	}
}

// Dismiss clears the message and any error right away.
func (f *Flow) Dismiss() {
	f.update(func() {
		if f.stop != nil {
			f.stop()
		}
		f.gen++
		f.clearLocked()
		f.err = nil
	})
}

func (f *Flow) update(fn func()) {
	f.mu.Lock()
	fn()
	snap := f.statusLocked()
	f.mu.Unlock()
	f.hub.Publish(snap)
}

func (f *Flow) statusLocked() Status {
	return Status{State: f.state, Message: f.message, Err: f.err, Result: f.result}
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

// Busy reports whether a submission is pending, so the UI can disable the
// submit control.
func (f *Flow) Busy() bool {
	s := f.Status().State
	return s == StateValidating || s == StateSubmitting
}

func (f *Flow) Message() string { return f.Status().Message }

func (f *Flow) Err() error { return f.Status().Err }

func (f *Flow) Subscribe(fn func(Status)) func() {
	return f.hub.Subscribe(fn)
}
