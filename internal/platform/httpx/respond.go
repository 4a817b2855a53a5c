// Package httpx provides the uniform JSON response envelope shared by all
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope wraps every API response body.
type Envelope struct {
	Data    any      `json:"data"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Errors  []string `json:"errors"`
}

// JSON sends a success envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, message string) {
	write(w, status, Envelope{
		Data:    data,
		Message: message,
		Status:  status,
		Errors:  []string{},
	})
}

// Error sends a failure envelope. The errors slice carries per-item detail
// such as offending ids; it may be empty.
func Error(w http.ResponseWriter, status int, message string, errs []string) {
	if errs == nil {
		errs = []string{}
	}
	write(w, status, Envelope{
		Data:    nil,
		Message: message,
		Status:  status,
		Errors:  errs,
	})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
