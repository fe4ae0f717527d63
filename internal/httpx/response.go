// Clinica Guard - Access Control, Audit and Session Security
// Copyright 2026 Clinica Juridica USS
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinica-uss/clinicaguard

// Package httpx writes the JSON response envelope shared by every endpoint
// and middleware.
package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/clinica-uss/clinicaguard/internal/logging"
)

// Response is the envelope for all JSON responses.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta carries request metadata.
type Meta struct {
	RequestID  string      `json:"request_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Total   int64 `json:"total"`
	Count   int   `json:"count"`
	Offset  int   `json:"offset,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	HasMore bool  `json:"has_more"`
}

// Error codes
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Success writes a 200 envelope around data.
func Success(w http.ResponseWriter, r *http.Request, data any) {
	SuccessWithPagination(w, r, data, nil)
}

// SuccessWithPagination writes a 200 envelope with pagination metadata.
func SuccessWithPagination(w http.ResponseWriter, r *http.Request, data any, p *Pagination) {
	JSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			RequestID:  logging.RequestIDFromContext(r.Context()),
			Timestamp:  time.Now().UTC(),
			Pagination: p,
		},
	})
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteErrorWithDetails(w, r, status, code, message, nil)
}

// WriteErrorWithDetails writes an error envelope with a details payload.
func WriteErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logging.RequestIDFromContext(r.Context())
	JSON(w, status, Response{
		Error: &Error{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
		Meta: &Meta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message)
}

// InternalError writes a 500 and logs err.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	WriteError(w, r, http.StatusInternalServerError, CodeInternalError, "An internal error occurred")
}

// TooManyRequests writes a 429 with Retry-After set to the wait in whole
// seconds (at least 1).
func TooManyRequests(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, message string, details any) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteErrorWithDetails(w, r, http.StatusTooManyRequests, CodeTooManyRequests, message, details)
}
