package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Class groups error codes by how a caller should react to them.
type Class int

const (
	ClassInternal Class = iota
	ClassPrecondition
	ClassNotFound
	ClassUnauthorized
	ClassArithmetic
	ClassTransfer
)

func (c Class) String() string {
	switch c {
	case ClassPrecondition:
		return "precondition"
	case ClassNotFound:
		return "not_found"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassArithmetic:
		return "arithmetic"
	case ClassTransfer:
		return "transfer"
	default:
		return "internal"
	}
}

// Error is a coded failure. Two errors are equal under errors.Is when their codes match,
// so sentinels survive wrapping with extra context.
type Error struct {
	Code  string
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return e.Code + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Class: e.Class, Msg: e.Msg, Err: cause}
}

// Withf returns a copy of the sentinel with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Code: e.Code, Class: e.Class, Msg: fmt.Sprintf(format, args...), Err: e.Err}
}

func newErr(class Class, code, msg string) *Error {
	return &Error{Code: code, Class: class, Msg: msg}
}

// ── Platform ─────────────────────────────────────────

var (
	ErrPlatformPaused             = newErr(ClassPrecondition, "PlatformPaused", "platform is currently paused")
	ErrPlatformNotPaused          = newErr(ClassPrecondition, "PlatformNotPaused", "platform is not paused")
	ErrPlatformNotFound           = newErr(ClassNotFound, "PlatformNotFound", "platform not found")
	ErrPlatformAlreadyInitialized = newErr(ClassPrecondition, "PlatformAlreadyInitialized", "platform already initialized")
	ErrUnauthorized               = newErr(ClassUnauthorized, "UnauthorizedAuthority", "caller is not allowed to perform this action")
	ErrInvalidFeeConfiguration    = newErr(ClassPrecondition, "InvalidFeeConfiguration", "fee basis points exceed maximum")
	ErrInvalidDurationBounds      = newErr(ClassPrecondition, "InvalidDurationBounds", "minimum duration must be below maximum")
)

// ── Validation ───────────────────────────────────────

var (
	ErrInvalidAmount         = newErr(ClassPrecondition, "InvalidAmount", "amount must be greater than zero")
	ErrAmountTooSmall        = newErr(ClassPrecondition, "AmountTooSmall", "amount below platform minimum")
	ErrSameTokenMints        = newErr(ClassPrecondition, "SameTokenMints", "source and destination assets must differ")
	ErrDurationTooShort      = newErr(ClassPrecondition, "DurationTooShort", "listing duration below platform minimum")
	ErrDurationTooLong       = newErr(ClassPrecondition, "DurationTooLong", "listing duration above platform maximum")
	ErrInvalidSlippage       = newErr(ClassPrecondition, "InvalidSlippage", "slippage basis points exceed maximum")
	ErrMinFillAmountTooLarge = newErr(ClassPrecondition, "MinFillAmountTooLarge", "minimum fill exceeds available amount")
	ErrMaxListingsReached    = newErr(ClassPrecondition, "MaxListingsReached", "maker reached the active listing limit")
	ErrTokenNotWhitelisted   = newErr(ClassPrecondition, "TokenNotWhitelisted", "asset is not whitelisted")
	ErrInvalidTimestamp      = newErr(ClassPrecondition, "InvalidTimestamp", "timestamp must be in the future")
	ErrInvalidPDA            = newErr(ClassPrecondition, "InvalidPDA", "supplied address does not match derived address")
)

// ── Listings & swaps ─────────────────────────────────

var (
	ErrListingNotFound            = newErr(ClassNotFound, "ListingNotFound", "listing not found")
	ErrListingAlreadyExists       = newErr(ClassPrecondition, "ListingAlreadyExists", "listing id already in use by this maker")
	ErrListingExpired             = newErr(ClassPrecondition, "ListingExpired", "listing has expired")
	ErrListingNotActive           = newErr(ClassPrecondition, "ListingNotActive", "listing is not active")
	ErrListingNotExpired          = newErr(ClassPrecondition, "ListingNotExpired", "listing has not expired yet")
	ErrInvalidListingStatus       = newErr(ClassPrecondition, "InvalidListingStatus", "listing status does not allow this operation")
	ErrInvalidStatusTransition    = newErr(ClassInternal, "InvalidStatusTransition", "illegal listing status transition")
	ErrSlippageExceeded           = newErr(ClassPrecondition, "SlippageExceeded", "fill price outside accepted slippage")
	ErrFillAmountTooSmall         = newErr(ClassPrecondition, "FillAmountTooSmall", "fill below listing minimum")
	ErrSwapAmountExceedsRemaining = newErr(ClassPrecondition, "SwapAmountExceedsRemaining", "fill exceeds remaining amount")
	ErrCannotSwapOwnListing       = newErr(ClassPrecondition, "CannotSwapOwnListing", "maker cannot fill own listing")
	ErrInsufficientMakerBalance   = newErr(ClassPrecondition, "InsufficientMakerBalance", "maker balance too low")
	ErrInsufficientTakerBalance   = newErr(ClassPrecondition, "InsufficientTakerBalance", "taker balance too low")
)

// ── Profiles ─────────────────────────────────────────

var (
	ErrUserProfileAlreadyExists = newErr(ClassPrecondition, "UserProfileAlreadyExists", "user profile already exists")
	ErrUserProfileNotFound      = newErr(ClassNotFound, "UserProfileNotFound", "user profile not found")
	ErrInvalidReferrer          = newErr(ClassPrecondition, "InvalidReferrer", "user cannot refer themselves")
)

// ── Arithmetic ───────────────────────────────────────

var (
	ErrArithmeticOverflow  = newErr(ClassArithmetic, "ArithmeticOverflow", "arithmetic overflow")
	ErrArithmeticUnderflow = newErr(ClassArithmetic, "ArithmeticUnderflow", "arithmetic underflow")
	ErrDivisionByZero      = newErr(ClassArithmetic, "DivisionByZero", "division by zero")
	ErrInvalidCalculation  = newErr(ClassArithmetic, "InvalidCalculation", "calculation produced an unusable result")
)

// ── Ledger ───────────────────────────────────────────

var (
	ErrTransferFailed        = newErr(ClassTransfer, "TransferFailed", "asset transfer failed")
	ErrVaultClosureFailed    = newErr(ClassTransfer, "VaultClosureFailed", "vault closure failed")
	ErrVaultBalanceMismatch  = newErr(ClassInternal, "VaultBalanceMismatch", "vault balance does not match remaining amount")
	ErrAccountNotInitialized = newErr(ClassNotFound, "AccountNotInitialized", "account not initialized")
)

// ClassOf reports the class of err, ClassInternal when err is not coded.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassInternal
}

// Code reports the code of err, empty when err is not coded.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error to the status the API answers with.
func HTTPStatus(err error) int {
	switch ClassOf(err) {
	case ClassPrecondition:
		return http.StatusUnprocessableEntity
	case ClassNotFound:
		return http.StatusNotFound
	case ClassUnauthorized:
		return http.StatusForbidden
	case ClassTransfer:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
