package auth

import (
	"errors"
	"fmt"
)

// Verification failures surface to callers as 401 with the error text.
// Configuration gaps are reported the same way so a misconfigured verifier
// never admits a request.
var (
	ErrMissingToken       = errors.New("Missing Bearer access token.")
	ErrEmptyToken         = errors.New("Missing access token.")
	ErrIssuerUnset        = errors.New("JWT issuer is not configured.")
	ErrAudienceUnset      = errors.New("JWT audience is not configured.")
	ErrJWKSURIUnset       = errors.New("JWKS URI is not configured.")
	ErrMissingKeyID       = errors.New("Token header missing key id (kid).")
	ErrSigningKeyNotFound = errors.New("Signing key not found for token kid.")
)

// TokenError wraps a verification failure with the message shown to callers.
type TokenError struct {
	Msg string
	Err error
}

func (e *TokenError) Error() string { return e.Msg }
func (e *TokenError) Unwrap() error { return e.Err }

func tokenError(err error, format string, args ...any) error {
	return &TokenError{Msg: fmt.Sprintf(format, args...), Err: err}
}
