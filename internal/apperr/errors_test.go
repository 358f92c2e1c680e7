package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := WithDetails(CodeOutOfStock, "ceiling exceeded", []Detail{{ProductID: "p1", Requested: 5, Available: 4}})
	wrapped := fmt.Errorf("submit: %w", err)

	if !errors.Is(wrapped, ErrOutOfStock) {
		t.Fatal("expected wrapped error to match ErrOutOfStock")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Fatal("did not expect match on a different code")
	}
	if got := CodeOf(wrapped); got != CodeOutOfStock {
		t.Fatalf("CodeOf = %q, want %q", got, CodeOutOfStock)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("serialization failure")
	err := Wrap(CodeConflict, "retries exhausted", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "retries exhausted: serialization failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("CodeOf = %q, want %q", got, CodeInternal)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:       http.StatusBadRequest,
		CodeInvalidProductID: http.StatusBadRequest,
		CodeUnauthenticated:  http.StatusUnauthorized,
		CodeForbidden:        http.StatusForbidden,
		CodeNotFound:         http.StatusNotFound,
		CodeOutOfStock:       http.StatusConflict,
		CodeAlreadySubmitted: http.StatusConflict,
		CodeRoundClosed:      http.StatusConflict,
		CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: status = %d, want %d", code, got, want)
		}
	}
}

func TestUserMessagesAreDistinct(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeInvalidProductID, CodeOutOfStock, CodeAlreadySubmitted,
		CodeNotFound, CodeRoundClosed, CodePriceChanged, CodeConflict,
		CodeUnauthenticated, CodeForbidden, CodeInternal,
	}
	seen := map[string]Code{}
	for _, c := range codes {
		msg := c.UserMessage()
		if prev, ok := seen[msg]; ok {
			t.Fatalf("%s and %s share message %q", prev, c, msg)
		}
		seen[msg] = c
	}
}

func TestProductIDs(t *testing.T) {
	err := WithDetails(CodePriceChanged, "stale", []Detail{{ProductID: "a"}, {ProductID: "b"}})
	ids := err.ProductIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ProductIDs = %v", ids)
	}
}
