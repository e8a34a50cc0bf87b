package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinic/internal/apperr"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      apperr.Code       `json:"code"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindStaleState:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err, "unexpected error")
	}
	status := statusFor(e.Kind)

	msg := e.Message
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		msg = "internal error"
	}

	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      e.Code,
		Retryable: e.Retryable(),
		Fields:    e.Fields,
	})
}

func writeStatus(w http.ResponseWriter, status int, code apperr.Code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var v apperr.Validation
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var timeErr *time.ParseError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			v.Add(typeErr.Field, fmt.Sprintf("must be %s", typeErr.Type))
		case errors.As(err, &timeErr):
			v.Add("body", "times must be ISO-8601 (RFC 3339)")
		case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			v.Add("body", "invalid JSON body")
		default:
			v.Add("body", err.Error())
		}
		return v.Err()
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		var v apperr.Validation
		v.Add(field, "is required")
		return time.Time{}, v.Err()
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	var v apperr.Validation
	v.Add(field, "invalid format; expected YYYY-MM-DD")
	return time.Time{}, v.Err()
}
