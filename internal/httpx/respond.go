package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-round-orders/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code     apperr.Code       `json:"code"`
	Message  string            `json:"message"`
	Details  []apperr.Detail   `json:"details,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders coded errors with their user-facing message. Anything
// uncoded is logged and reported as INTERNAL without leaking the cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		if logger != nil {
			logger.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: apperr.CodeInternal, Message: apperr.CodeInternal.UserMessage()})
		return
	}
	writeJSON(w, ae.Code.HTTPStatus(), errorBody{
		Code:     ae.Code,
		Message:  ae.Code.UserMessage(),
		Details:  ae.Details,
		Metadata: ae.Metadata,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.CodeValidation, "empty body")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && strings.HasSuffix(typeErr.Field, "product_id") {
			return apperr.Wrap(apperr.CodeInvalidProductID, "product_id must be a string", err)
		}
		return apperr.Wrap(apperr.CodeValidation, "invalid json", err)
	}
	return nil
}
