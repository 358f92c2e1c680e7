package apperr

import "net/http"

// Code is a machine-readable error code returned to API callers.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Input errors, rejected before any transaction starts.
	CodeValidation       Code = "VALIDATION"
	CodeInvalidProductID Code = "INVALID_PRODUCT_ID"

	// Stock ceiling.
	CodeOutOfStock Code = "OUT_OF_STOCK"

	// State preconditions.
	CodeAlreadySubmitted Code = "ALREADY_SUBMITTED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRoundClosed      Code = "ROUND_CLOSED"
	CodePriceChanged     Code = "PRICE_CHANGED"

	// Concurrency: surfaced only after retries are exhausted.
	CodeConflict Code = "CONFLICT"

	// Identity collaborator.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps a code to the status written by the HTTP layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInvalidProductID:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeOutOfStock, CodeAlreadySubmitted, CodeConflict, CodeRoundClosed, CodePriceChanged:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the one distinguishable message shown for each code.
func (c Code) UserMessage() string {
	switch c {
	case CodeValidation:
		return "The request is invalid."
	case CodeInvalidProductID:
		return "One or more product identifiers are invalid for this round."
	case CodeOutOfStock:
		return "Not enough stock left. Refresh availability and adjust quantities."
	case CodeAlreadySubmitted:
		return "You already submitted an order for this round. Edit it instead."
	case CodeNotFound:
		return "The requested resource was not found."
	case CodeRoundClosed:
		return "This round is closed for ordering."
	case CodePriceChanged:
		return "Prices changed since you loaded the catalog. Refresh and try again."
	case CodeConflict:
		return "The order could not be saved due to concurrent activity. Try again."
	case CodeUnauthenticated:
		return "Sign in to continue."
	case CodeForbidden:
		return "You are not allowed to perform this action."
	default:
		return "Something went wrong."
	}
}
