package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/iho/carbonledger/internal/adapter/http/dto"
	"github.com/iho/carbonledger/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// writeDomainError writes err with the status its kind maps to.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := dto.ErrorResponse{
		Error:   message,
		Message: err.Error(),
	}
	if le, ok := domain.AsLedgerError(err); ok {
		resp.Kind = le.Kind.Error()
		resp.LotID = le.LotID
		resp.BidID = le.BidID
		resp.Invariant = le.Invariant
	} else if kind := domain.ErrorKind(err); kind != nil {
		resp.Kind = kind.Error()
	}
	writeJSON(w, mapDomainError(err), resp)
}

// mapDomainError maps domain errors to HTTP status codes. A LedgerError is
// mapped by its own kind, not by its cause.
func mapDomainError(err error) int {
	if le, ok := domain.AsLedgerError(err); ok {
		err = le.Kind
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrLotNotFound), errors.Is(err, domain.ErrBidNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLotExists),
		errors.Is(err, domain.ErrStateConflict),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientAmount),
		errors.Is(err, domain.ErrAlreadyRetired),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrNotVerified),
		errors.Is(err, domain.ErrNotListed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

// requireCaller returns the authenticated caller, writing a 401 when there is none.
func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Caller, bool) {
	caller, ok := domain.CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity is required")
	}
	return caller, ok
}

// parseIntQuery parses an integer query parameter with a default value.
// A present but malformed value is a validation error.
func parseIntQuery(r *http.Request, key string, defaultValue int) (int, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, &domain.LedgerError{
			Kind:      domain.ErrValidation,
			Invariant: domain.InvariantInput,
			Detail:    fmt.Sprintf("%s must be an integer, got %q", key, val),
		}
	}
	return i, nil
}

// parsePage reads the limit and offset query parameters.
func parsePage(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	if limit, err = parseIntQuery(r, "limit", defaultLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = parseIntQuery(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
