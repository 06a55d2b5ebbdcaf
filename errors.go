package identity

import (
	"errors"
	"net/http"
)

var (
	// ErrEmailTaken rejects a registration against an existing email.
	ErrEmailTaken = errors.New("email already exists")
	// ErrUsernameTaken rejects a registration against an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrPhoneTaken rejects a registration against an existing phone number.
	ErrPhoneTaken = errors.New("phone number already exists")
	// ErrAlreadyVerified rejects a verification request for a verified
	// mailbox so clients can detect the no-op.
	ErrAlreadyVerified = errors.New("email already verified")

	// ErrUserNotFound means the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrCredentialNotFound means the user has no credential for the
	// provider. Should be unreachable for a fully registered user.
	ErrCredentialNotFound = errors.New("no credential for user")

	// ErrInvalidCredentials rejects a login secret mismatch. The boundary
	// presents this and ErrUserNotFound as the same generic message to
	// avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid means a signed token failed signature or structure
	// checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired means a signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked means an otherwise-valid access token is on the
	// revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshInvalid rejects a refresh token that is expired, invalid,
	// or no longer the user's current session.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrUserGone means the token verified but its subject no longer
	// exists.
	ErrUserGone = errors.New("user no longer exists")

	// ErrNoPendingReset means there is no reset token to consume.
	ErrNoPendingReset = errors.New("no pending password reset")
	// ErrNoRowWritten means an insert or update unexpectedly produced no
	// row. Defensive; unreachable after the uniqueness checks pass.
	ErrNoRowWritten = errors.New("write returned no row")
	// ErrResetExpired means the pending reset token is past its expiry;
	// distinct from mismatch so the UX can offer a new link.
	ErrResetExpired = errors.New("reset token expired")
	// ErrResetInvalid rejects a reset token that does not match the
	// stored hash.
	ErrResetInvalid = errors.New("invalid reset token")

	// ErrValidation rejects input before it reaches the engine.
	ErrValidation = errors.New("invalid input")

	// ErrEngineNotReady guards calls on a partially constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind classifies an engine error for the boundary layer.
type Kind int

const (
	// KindInternal is any unexpected, non-operational failure. Log the
	// detail, surface a generic message.
	KindInternal Kind = iota
	// KindConflict is a uniqueness or state violation.
	KindConflict
	// KindNotFound means a referenced entity is absent.
	KindNotFound
	// KindUnauthorized means a credential or token was rejected,
	// including expired reset and refresh tokens.
	KindUnauthorized
	// KindInvalidToken means a signed token is malformed or
	// unverifiable, as opposed to merely expired.
	KindInvalidToken
	// KindForbidden means the caller authenticated but the entity
	// vanished underneath it.
	KindForbidden
	// KindBadRequest means the request state is structurally invalid.
	KindBadRequest
	// KindValidation means the input shape was rejected up front.
	KindValidation
)

// KindOf maps an engine error to its taxonomy kind. Unknown errors are
// internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrPhoneTaken),
		errors.Is(err, ErrAlreadyVerified):
		return KindConflict
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrCredentialNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrResetExpired),
		errors.Is(err, ErrResetInvalid):
		return KindUnauthorized
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid):
		return KindInvalidToken
	case errors.Is(err, ErrUserGone):
		return KindForbidden
	case errors.Is(err, ErrNoPendingReset),
		errors.Is(err, ErrNoRowWritten):
		return KindBadRequest
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// HTTPStatus maps a kind to the status code the routing layer should
// answer with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized, KindInvalidToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
