package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kubikal7/ski-jumping-management/internal/ctxutil"
	"github.com/kubikal7/ski-jumping-management/internal/model"
)

func meta(r *http.Request) model.ResponseMeta {
	return model.ResponseMeta{
		RequestID: ctxutil.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	}
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Data: data, Meta: meta(r)})
}

// writeList writes a page of a list endpoint.
func writeList[T any](w http.ResponseWriter, r *http.Request, items []T, total int, p model.Page) {
	if items == nil {
		items = []T{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(model.ListResponse{
		Data:    items,
		Total:   &total,
		HasMore: p.Offset+len(items) < total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Meta:    meta(r),
	})
}

// writeError writes a JSON error response with the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message, Details: details},
		Meta:  meta(r),
	})
}

// writeServiceError maps the service error kinds onto HTTP statuses. Storage
// faults and unclassified errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, model.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, err.Error())
	case errors.Is(err, model.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", ctxutil.RequestIDFromContext(r.Context()),
		)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}

// decodeJSON reads a bounded JSON body into target, rejecting unknown fields
// and trailing data, then validates the struct tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return validate.Struct(target)
}

// handleDecodeError reports a decodeJSON failure.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		maxErr *http.MaxBytesError
		verrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &maxErr):
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describeFieldError(fe)
			msgs = append(msgs, fe.Field()+" "+describeFieldError(fe))
		}
		writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"invalid request: "+strings.Join(msgs, "; "), fields)
	case errors.Is(err, io.EOF):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "request body is required")
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
	}
}
