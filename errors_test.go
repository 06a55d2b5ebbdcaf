package identity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrEmailTaken, KindConflict},
		{fmt.Errorf("register: %w", ErrUsernameTaken), KindConflict},
		{ErrAlreadyVerified, KindConflict},
		{ErrUserNotFound, KindNotFound},
		{ErrCredentialNotFound, KindNotFound},
		{ErrInvalidCredentials, KindUnauthorized},
		{ErrTokenExpired, KindUnauthorized},
		{ErrTokenRevoked, KindUnauthorized},
		{ErrResetExpired, KindUnauthorized},
		{ErrResetInvalid, KindUnauthorized},
		{ErrTokenInvalid, KindInvalidToken},
		{ErrRefreshInvalid, KindInvalidToken},
		{ErrUserGone, KindForbidden},
		{ErrNoPendingReset, KindBadRequest},
		{fmt.Errorf("%w: user insert", ErrNoRowWritten), KindBadRequest},
		{fmt.Errorf("%w: email required", ErrValidation), KindValidation},
		{errors.New("disk on fire"), KindInternal},
		{nil, KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInvalidToken, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindBadRequest, http.StatusBadRequest},
		{KindValidation, http.StatusUnprocessableEntity},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.kind); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
