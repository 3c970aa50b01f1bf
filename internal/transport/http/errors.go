package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
)

// errorEnvelope is the REST/SSE error response body, per the canonical code
// table.
type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain-text 500, matching the health package's
// convention.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"code":5000,"message":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError maps err to the canonical error envelope. Unrecognised errors
// become a 500 internal error.
func writeError(w http.ResponseWriter, traceID string, err error) {
	var gerr *gatewayerr.Error
	if errors.As(err, &gerr) {
		status := gerr.HTTPStatus()
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorEnvelope{Code: int(gerr.Code), Message: gerr.Error(), TraceID: traceID})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{
		Code:    int(gatewayerr.CodeInternal),
		Message: err.Error(),
		TraceID: traceID,
	})
}
