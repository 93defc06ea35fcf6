package resp

import (
	"net/http"

	"github.com/ncobase/keyvault/ecode"
)

// Error writes err as a failure response. Errors carrying an ecode keep their
// code and message; anything else becomes an opaque internal error.
func Error(w http.ResponseWriter, err error, data ...any) {
	code := ecode.Code(err)
	message := ecode.Message(err)
	if code == ecode.ServerErr {
		message = ecode.Text(ecode.ServerErr)
	}
	Fail(w, newException(ecode.ToHTTPStatus(code), code, message, data...))
}

// NotFound indicates that the requested resource is not found.
func NotFound(message string, data ...any) *Exception {
	return newException(http.StatusNotFound, ecode.NothingFound, message, data...)
}

// UnAuthorized indicates that the request is unauthorized.
func UnAuthorized(message string, data ...any) *Exception {
	return newException(http.StatusUnauthorized, ecode.Unauthorized, message, data...)
}

// BadRequest indicates a bad request.
func BadRequest(message string, data ...any) *Exception {
	return newException(http.StatusBadRequest, ecode.RequestErr, message, data...)
}

// InternalServer indicates a server error.
func InternalServer(message string, data ...any) *Exception {
	return newException(http.StatusInternalServerError, ecode.ServerErr, message, data...)
}
