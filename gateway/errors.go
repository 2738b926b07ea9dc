package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tensormart.io/market/captoken"
	"tensormart.io/market/entitle"
	"tensormart.io/market/inference"
	"tensormart.io/market/ledger"
	"tensormart.io/market/record"
)

// ErrorCode is a stable machine-readable failure code. The HTTP layer
// never collapses the internal taxonomy: "denied", "unknown", "unavailable"
// and "rate limited" stay distinguishable in the response body.
type ErrorCode string

const (
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodeNotFound        ErrorCode = "not_found"
	CodeNoAccess        ErrorCode = "no_access"
	CodeAccessRevoked   ErrorCode = "access_revoked"
	CodeAccessExpired   ErrorCode = "access_expired"
	CodeWrongAccessType ErrorCode = "wrong_entitlement_type"
	CodeModelInactive   ErrorCode = "model_inactive"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeLedgerCorrupt   ErrorCode = "record_corrupt"
	CodeUnavailable     ErrorCode = "unavailable"
	CodeTokenExpired    ErrorCode = "token_expired"
	CodeTokenInvalid    ErrorCode = "token_invalid"
	CodeInferenceFailed ErrorCode = "inference_failed"
	CodeInternal        ErrorCode = "internal"
)

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: msg}})
}

// writeEngineError maps the internal error taxonomy onto the response
// contract. Order matters: corrupt records and outages are checked before
// the generic fallthrough so they are never reported as denials.
func writeEngineError(w http.ResponseWriter, err error) {
	var decodeErr *record.Error
	switch {
	case errors.As(err, &decodeErr):
		// Integrity failure: the record exists but cannot be interpreted.
		writeError(w, http.StatusBadGateway, CodeLedgerCorrupt, err.Error())
	case ledger.IsUnavailable(err):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, inference.ErrUnavailable):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	case errors.Is(err, inference.ErrModelNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, inference.ErrExecution):
		writeError(w, http.StatusBadGateway, CodeInferenceFailed, err.Error())
	case errors.Is(err, captoken.ErrExpired):
		writeError(w, http.StatusUnauthorized, CodeTokenExpired, err.Error())
	case errors.Is(err, captoken.ErrInvalid):
		writeError(w, http.StatusUnauthorized, CodeTokenInvalid, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

// writeDenial maps a non-valid entitlement status to its response. Each
// status keeps its own code so clients can render "purchase" vs "renew"
// messaging.
func writeDenial(w http.ResponseWriter, status entitle.Status) {
	switch status {
	case entitle.StatusNoRecord:
		writeError(w, http.StatusForbidden, CodeNoAccess, "no access record for this model")
	case entitle.StatusRevoked:
		writeError(w, http.StatusForbidden, CodeAccessRevoked, "access has been revoked")
	case entitle.StatusExpired:
		writeError(w, http.StatusForbidden, CodeAccessExpired, "access has expired")
	default:
		writeError(w, http.StatusForbidden, CodeNoAccess, "access denied")
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter int64) {
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}
