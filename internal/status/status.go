package status

import "errors"

var (
	ErrInvalidArgument  = errors.New("token: invalid argument")
	ErrTokenMalformed   = errors.New("token: malformed token")
	ErrSignatureInvalid = errors.New("token: signature invalid")
	ErrTokenExpired     = errors.New("token: token expired")
	ErrMissingClaims    = errors.New("token: required claims missing")

	ErrSecretUnavailable = errors.New("secret: secret unavailable")
	ErrParameterNotFound = errors.New("secret: parameter not found")

	ErrUnauthorized   = errors.New("report: device token rejected")
	ErrDeviceMismatch = errors.New("report: token issued to another device")

	ErrNotFound    = errors.New("store: key not found")
	ErrCircuitOpen = errors.New("store: circuit breaker is open")
)
