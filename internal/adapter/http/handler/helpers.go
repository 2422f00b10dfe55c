package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	retryAfter      = "1"
)

func writeEnvelope(w http.ResponseWriter, status int, env dto.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// writeJSON writes a successful response envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, dto.Envelope{Success: true, Data: data})
}

// writeFailure writes a failed response envelope.
func writeFailure(w http.ResponseWriter, status int, body dto.ErrorBody) {
	writeEnvelope(w, status, dto.Envelope{Error: &body})
}

// writeBadRequest rejects a request that never reached the ledger.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeFailure(w, http.StatusBadRequest, dto.ErrorBody{Code: string(domain.KindValidation), Message: message})
}

// writeError maps err onto a status code and writes it. Internal errors are logged, not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *dto.ValidationError
	if errors.As(err, &verr) {
		writeFailure(w, http.StatusBadRequest, dto.ErrorBody{
			Code:    string(domain.KindValidation),
			Message: verr.Error(),
			Details: verr.Details,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrExpiredToken):
		writeFailure(w, http.StatusUnauthorized, dto.ErrorBody{Code: "unauthorized", Message: err.Error()})
		return
	case errors.Is(err, domain.ErrInsufficientRole):
		writeFailure(w, http.StatusForbidden, dto.ErrorBody{Code: "forbidden", Message: err.Error()})
		return
	}

	kind := domain.ErrorKind(err)
	status := statusForKind(kind)
	message := err.Error()

	switch kind {
	case domain.KindInternal:
		l := logger.FromContext(r.Context())
		l.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		message = "internal error"
	case domain.KindConcurrencyConflict:
		w.Header().Set("Retry-After", retryAfter)
	}

	writeFailure(w, status, dto.ErrorBody{Code: string(kind), Message: message})
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAccountState, domain.KindDuplicateReference, domain.KindConcurrencyConflict:
		return http.StatusConflict
	case domain.KindPostingTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst and validates it. An empty body decodes as {}.
func decode(r *http.Request, v *dto.Validator, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &dto.ValidationError{Details: map[string]string{"body": err.Error()}}
	}
	return v.Struct(dst)
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// page reads limit and offset, clamping limit to maxPageSize.
func page(r *http.Request) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset = parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseTimeQuery parses an RFC 3339 query parameter. Missing values yield nil.
func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, &dto.ValidationError{Details: map[string]string{key: "must be an RFC 3339 timestamp"}}
	}
	return &t, nil
}

// splitList parses a comma separated query parameter.
func splitList(r *http.Request, key string) []string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
