package server

import (
	"net/http"

	"github.com/Dangoware/confetti-box/pkg/errtypes"
)

// statusFor maps the closed errtypes taxonomy to an HTTP status code. This
// is the one place in the codebase that knows about status codes — every
// package below it returns a tagged error value instead (spec §7
// propagation policy).
func statusFor(err error) int {
	switch {
	case errtypes.IsValidation(err):
		return http.StatusBadRequest
	case errtypes.IsProtocolViolation(err):
		return http.StatusBadRequest
	case errtypes.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
