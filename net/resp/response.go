package resp

import (
	"encoding/json"
	"net/http"

	"github.com/ncobase/keyvault/ecode"
)

// Exception is the failure envelope.
type Exception struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}

func newException(status, code int, message string, data ...any) *Exception {
	e := &Exception{Status: status, Code: code, Message: message}
	if len(data) > 0 {
		e.Errors = data[0]
	}
	return e
}

// Success writes data with 200.
func Success(w http.ResponseWriter, data ...any) {
	WithStatusCode(w, http.StatusOK, data...)
}

// WithStatusCode writes data with statusCode. A string payload is sent as
// {"message": ...}; no payload sends {"message": "ok"}. 204 writes no body.
func WithStatusCode(w http.ResponseWriter, statusCode int, data ...any) {
	if statusCode == http.StatusNoContent {
		w.WriteHeader(statusCode)
		return
	}

	var body any = map[string]any{"message": "ok"}
	if len(data) > 0 && data[0] != nil {
		body = data[0]
		if msg, ok := body.(string); ok {
			body = map[string]any{"message": msg}
		}
	}
	writeJSON(w, statusCode, body)
}

// Fail writes r. Missing fields fall back to a bad request; a nil r is an
// internal error.
func Fail(w http.ResponseWriter, r *Exception) {
	if r == nil {
		r = newException(http.StatusInternalServerError, ecode.ServerErr, "")
	}
	if r.Status == 0 {
		r.Status = http.StatusBadRequest
	}
	if r.Code == 0 {
		r.Code = ecode.RequestErr
	}
	if r.Message == "" {
		r.Message = ecode.Text(r.Code)
	}
	writeJSON(w, r.Status, r)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
