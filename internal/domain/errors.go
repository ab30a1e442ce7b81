package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuth
	KindAuthorization
	KindNetwork
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindNetwork:
		return "network"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error carries a kind so callers can route it (login page, forbidden view,
// inline message) without string matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newKind(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func ValidationError(err error, format string, args ...interface{}) *Error {
	return newKind(KindValidation, err, format, args...)
}

func AuthError(err error, format string, args ...interface{}) *Error {
	return newKind(KindAuth, err, format, args...)
}

func AuthorizationError(err error, format string, args ...interface{}) *Error {
	return newKind(KindAuthorization, err, format, args...)
}

func NetworkError(err error, format string, args ...interface{}) *Error {
	return newKind(KindNetwork, err, format, args...)
}

func PersistenceError(err error, format string, args ...interface{}) *Error {
	return newKind(KindPersistence, err, format, args...)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to order")
	ErrLoginRequired      = errors.New("you must log in to place an order")
	ErrForbidden          = errors.New("access denied for current role")
	ErrStockLimit         = errors.New("no more stock available for this product")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUnknownPrice       = errors.New("product price is not known")
	ErrSubmissionInFlight = errors.New("an order submission is already in progress")
	ErrUnknownOrderStatus = errors.New("unknown order status")
	ErrSelfDelete         = errors.New("you cannot delete your own account")
)
