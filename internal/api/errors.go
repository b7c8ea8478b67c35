package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx status API response.
// RequestID echoes X-Request-ID so a failed call can be found in the log.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// errorCodes maps the statuses the API emits to their machine-readable code.
var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusInternalServerError: "internal_error",
	http.StatusBadGateway:          "upstream_failed",
	http.StatusServiceUnavailable:  "unavailable",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// writeError writes an ErrorResponse for status, tagged with the request's ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "error"
	}
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID(r),
	})
}
