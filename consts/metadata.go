package consts

// AuthorizationKey Authorization header key
const AuthorizationKey string = "Authorization"

// BearerKey Bearer token prefix
const BearerKey string = "Bearer "

// GinContextKey gin context key
const GinContextKey = "gin-context"

// TraceKey trace id header
const TraceKey string = "X-Trace-ID"

// UserKey global user id
const UserKey string = "x-md-uid"
