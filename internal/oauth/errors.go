package oauth

import "errors"

// State tracker failures. All of them are terminal for the authorization
// attempt: the caller restarts by requesting a fresh authorization URL.
var (
	ErrStateNotFound     = errors.New("oauth state not found or already used")
	ErrStateExpired      = errors.New("oauth state expired")
	ErrStateUserMismatch = errors.New("oauth state belongs to a different user")
)

// Token exchange failures. InvalidGrant means the code is spent or wrong
// and retrying the exchange can never succeed; ProviderUnavailable is a
// transport-level failure the user may retry from the top.
var (
	ErrInvalidGrant        = errors.New("provider rejected the authorization code")
	ErrProviderUnavailable = errors.New("oauth provider unreachable")
	ErrRedirectURIMismatch = errors.New("redirect URI does not match the one used for authorization")
	ErrNotConfigured       = errors.New("outlook integration is not configured")
)
