// Package handlers implements the HTTP surface: question answering (plain
// and SSE), conversation management, paper listing and ingestion, and
// health endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
)

// Response is the uniform JSON envelope for non-streaming endpoints.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo describes a request failure.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError maps an error to the envelope, unwrapping typed LLM errors to
// their HTTP status.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := http.StatusInternalServerError
	info := &ErrorInfo{Code: "internal_error", Message: err.Error()}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.HTTPStatus != 0 {
			status = llmErr.HTTPStatus
		}
		info.Code = string(llmErr.Code)
		info.Message = llmErr.Message
		info.Retryable = llmErr.Retryable
	}

	if logger != nil {
		logger.Error("request failed",
			zap.String("code", info.Code),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeErrorInfo(w, status, info)
}

// WriteErrorMessage writes a simple error response.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeErrorInfo(w, status, &ErrorInfo{Code: code, Message: message})
}

func writeErrorInfo(w http.ResponseWriter, status int, info *ErrorInfo) {
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now().UTC(),
	})
}

// DecodeJSONBody decodes the request body into dest, rejecting unknown
// fields. On failure it writes the error response and returns false.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

// queryInt reads an integer query parameter, falling back to def when absent
// or unparseable.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
