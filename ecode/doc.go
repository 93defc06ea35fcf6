// Package ecode defines the stable error codes used across keyvault and the
// error value that carries them from the domain services to the transport.
//
// Codes are negative and grouped by hundreds: -1xx auth and pending access,
// -2xx request validation, -3xx resources (not found, conflict), -4xx
// approval state and dispatch, -5xx server.
//
// Services return *Error values so that the kind of a failure survives
// wrapping all the way to the HTTP layer:
//
//	if approval == nil {
//	    return nil, ecode.Newf(ecode.NothingFound, "Approval with id %s not found", id)
//	}
//
//	if ecode.Is(err, ecode.Conflict) {
//	    ...
//	}
//
// ToHTTPStatus maps a code to the response status, e.g. NothingFound to 404.
package ecode
