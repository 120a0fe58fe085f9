package domain

import "errors"

// ErrorKind classifies domain errors so callers can render an actionable
// message instead of a generic failure.
type ErrorKind string

const (
	KindConfig        ErrorKind = "CONFIG"
	KindPrecondition  ErrorKind = "PRECONDITION"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindResource      ErrorKind = "RESOURCE"
	KindArithmetic    ErrorKind = "ARITHMETIC"
)

// Error is a domain error carrying its classification kind.
// Sentinel instances below are compared with errors.Is.
type Error struct {
	Kind ErrorKind
	Code string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Code
}

// Configuration errors
var (
	ErrAssetNotEnabled = &Error{Kind: KindConfig, Code: "asset not enabled"}
	ErrOracleNotSet    = &Error{Kind: KindConfig, Code: "oracle not set for asset"}
	ErrSweepProtected  = &Error{Kind: KindConfig, Code: "cannot sweep an enabled asset"}
)

// Precondition errors
var (
	ErrPaused             = &Error{Kind: KindPrecondition, Code: "vault is paused"}
	ErrStillLocked        = &Error{Kind: KindPrecondition, Code: "receipt still locked"}
	ErrAlreadyWithdrawn   = &Error{Kind: KindPrecondition, Code: "receipt already withdrawn"}
	ErrNotUnlocked        = &Error{Kind: KindPrecondition, Code: "credit not yet unlocked"}
	ErrAlreadyClaimed     = &Error{Kind: KindPrecondition, Code: "credit already claimed"}
	ErrWrongState         = &Error{Kind: KindPrecondition, Code: "batch in wrong state"}
	ErrBatchNotPending    = &Error{Kind: KindPrecondition, Code: "batch is not the pending batch"}
	ErrEmptyBatch         = &Error{Kind: KindPrecondition, Code: "batch has no members"}
	ErrAlreadyClosed      = &Error{Kind: KindPrecondition, Code: "batch already closed"}
	ErrAlreadyDistributed = &Error{Kind: KindPrecondition, Code: "batch already distributed"}
	ErrNotFound           = &Error{Kind: KindPrecondition, Code: "entity not found"}
)

// Authorization errors
var (
	ErrUnauthorized = &Error{Kind: KindAuthorization, Code: "caller not authorized"}
	ErrNotOwner     = &Error{Kind: KindAuthorization, Code: "caller is not the owner"}
)

// Resource errors
var (
	ErrInsufficientBalance   = &Error{Kind: KindResource, Code: "insufficient balance"}
	ErrInsufficientLiquidity = &Error{Kind: KindResource, Code: "insufficient liquidity"}
	ErrTransferFailed        = &Error{Kind: KindResource, Code: "transfer failed"}
	ErrFundingFailed         = &Error{Kind: KindResource, Code: "batch funding failed"}
)

// Arithmetic errors
var (
	ErrZeroAmount      = &Error{Kind: KindArithmetic, Code: "amount must be positive"}
	ErrOraclePriceZero = &Error{Kind: KindArithmetic, Code: "oracle returned zero price"}
	ErrDivisionByZero  = &Error{Kind: KindArithmetic, Code: "division by zero"}
)

// KindOf returns the classification of err, or an empty kind if err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
