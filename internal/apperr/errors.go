// Package apperr provides the coded error type shared by the ordering core
// and its transports.
package apperr

import "errors"

// Detail describes one offending product in a multi-item failure.
type Detail struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context
	Details  []Detail          // Per-product details (OUT_OF_STOCK, PRICE_CHANGED, INVALID_PRODUCT_ID)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ProductIDs returns the product ids named in Details, in order.
func (e *Error) ProductIDs() []string {
	ids := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		ids = append(ids, d.ProductID)
	}
	return ids
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// WithDetails creates a domain error carrying per-product details.
func WithDetails(code Code, message string, details []Detail) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is.
var (
	ErrValidation       = New(CodeValidation, "validation")
	ErrInvalidProductID = New(CodeInvalidProductID, "invalid product id")
	ErrOutOfStock       = New(CodeOutOfStock, "out of stock")
	ErrAlreadySubmitted = New(CodeAlreadySubmitted, "already submitted")
	ErrNotFound         = New(CodeNotFound, "not found")
	ErrRoundClosed      = New(CodeRoundClosed, "round closed")
	ErrPriceChanged     = New(CodePriceChanged, "price changed")
	ErrConflict         = New(CodeConflict, "conflict")
	ErrUnauthenticated  = New(CodeUnauthenticated, "unauthenticated")
	ErrForbidden        = New(CodeForbidden, "forbidden")
)

// CodeOf extracts the code from err, or CodeInternal when err is not coded.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
