// Package server implements the thin HTTP adapter over the table runtime:
// request envelope validation, JSON conversion at the row boundary, and
// error-to-status mapping. It adds no storage semantics of its own.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/schema"
)

// CreateTableRequest is the body of POST /v1/table/create.
type CreateTableRequest struct {
	Database string          `json:"database"`
	Table    string          `json:"table"`
	Schema   []schema.Column `json:"schema"`
}

// InsertRequest is the body of POST /v1/insert.
type InsertRequest struct {
	Database string         `json:"database"`
	Table    string         `json:"table"`
	Data     map[string]any `json:"data"`
}

// BulkInsertRequest is the body of POST /v1/bulkInsert.
type BulkInsertRequest struct {
	Database string           `json:"database"`
	Table    string           `json:"table"`
	Data     []map[string]any `json:"data"`
}

// UpdateRequest is the body of PUT /v1/update.
type UpdateRequest struct {
	Database string         `json:"database"`
	Table    string         `json:"table"`
	ID       string         `json:"id"`
	Data     map[string]any `json:"data"`
}

// DeleteRequest is the body of DELETE /v1/delete.
type DeleteRequest struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	ID       string `json:"id"`
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Wrap(apperr.KindInternal, "unexpected error", err)
	}
	writeJSON(w, e.Status(), errorBody{Error: errorDetail{
		Code:      string(e.Kind),
		Message:   e.Message,
		Status:    e.Status(),
		Timestamp: e.Timestamp,
		Meta:      e.Meta,
	}})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}

// required rejects an empty envelope field with MISSING_REQUIRED_FIELD.
func required(field, value string) error {
	if value == "" {
		return apperr.Newf(apperr.KindMissingRequiredField, "%s is required", field).
			With("field", field)
	}
	return nil
}
