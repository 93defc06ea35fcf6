package ecode

import "net/http"

const (
	OK = 0

	// authentication / authorization
	NoLogin             = -101
	Unauthorized        = -103
	AccessDenied        = -104
	PendingInaccessible = -107

	// request
	RequestErr = -200
	ParamErr   = -201

	// resource
	NothingFound = -300
	Conflict     = -301

	// business
	InvalidState   = -400
	DispatchFailed = -401

	// server
	ServerErr          = -500
	ServiceUnavailable = -503
)

var texts = map[int]string{
	OK:                  "ok",
	NoLogin:             "Account not logged in",
	Unauthorized:        "Unauthorized",
	AccessDenied:        "Access denied",
	PendingInaccessible: "Resource is pending approval",
	RequestErr:          "Invalid request",
	ParamErr:            "Invalid parameters",
	NothingFound:        "Resource not found",
	Conflict:            "Resource conflict",
	InvalidState:        "Invalid state",
	DispatchFailed:      "Failed to apply approved change",
	ServerErr:           "Internal server error",
	ServiceUnavailable:  "Service unavailable",
}

var statuses = map[int]int{
	OK:                  http.StatusOK,
	NoLogin:             http.StatusUnauthorized,
	Unauthorized:        http.StatusUnauthorized,
	AccessDenied:        http.StatusForbidden,
	PendingInaccessible: http.StatusUnauthorized,
	RequestErr:          http.StatusBadRequest,
	ParamErr:            http.StatusBadRequest,
	NothingFound:        http.StatusNotFound,
	Conflict:            http.StatusConflict,
	InvalidState:        http.StatusBadRequest,
	DispatchFailed:      http.StatusInternalServerError,
	ServerErr:           http.StatusInternalServerError,
	ServiceUnavailable:  http.StatusServiceUnavailable,
}

// Text returns the default message of a code
func Text(code int) string {
	if t, ok := texts[code]; ok {
		return t
	}
	return texts[ServerErr]
}

// ToHTTPStatus maps a code to its HTTP status
func ToHTTPStatus(code int) int {
	if s, ok := statuses[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
