package common

import "errors"

// Error kinds. Every error returned by the vault components wraps exactly one
// of them, so callers can branch on the failure class with errors.Is.
var (
	// ErrConfiguration marks failures caused by registry or parameter state.
	ErrConfiguration = errors.New("configuration error")
	// ErrOracle marks failures of price retrieval or validation.
	ErrOracle = errors.New("oracle error")
	// ErrLiquidity marks failures to source requested amounts.
	ErrLiquidity = errors.New("liquidity error")
	// ErrSlippage marks outputs below the caller-provided minimum.
	ErrSlippage = errors.New("slippage error")
	// ErrAuthorization marks calls from addresses lacking the required role.
	ErrAuthorization = errors.New("authorization error")
)

// Error is a sentinel error of a particular kind.
type Error struct {
	kind error
	msg  string
}

// NewError returns sentinel error with the given message classified as kind.
func NewError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Unwrap returns kind of the error.
func (e *Error) Unwrap() error {
	return e.kind
}

// Shared sentinel errors.
var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = NewError(ErrAuthorization, "caller is not authorized")
	// ErrInvalidAmount is returned for zero or otherwise unusable amounts.
	ErrInvalidAmount = NewError(ErrConfiguration, "invalid amount")
	// ErrArithmetic is returned when a checked operation overflows or
	// underflows.
	ErrArithmetic = NewError(ErrConfiguration, "arithmetic overflow")
	// ErrInsufficientBalance is returned when an account holds less than
	// required.
	ErrInsufficientBalance = NewError(ErrLiquidity, "insufficient balance")
	// ErrInsufficientAllowance is returned when a spender was approved for
	// less than required.
	ErrInsufficientAllowance = NewError(ErrAuthorization, "insufficient allowance")
	// ErrInsufficientLiquidity is returned when a strategy can not return the
	// requested amount right away.
	ErrInsufficientLiquidity = NewError(ErrLiquidity, "insufficient liquidity")
	// ErrSlippageExceeded is returned when an operation yields less than the
	// caller-provided minimum.
	ErrSlippageExceeded = NewError(ErrSlippage, "slippage exceeded")
)
