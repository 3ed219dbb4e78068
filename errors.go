package gatekeeper

import (
	"github.com/goliatone/go-errors"
)

const (
	// TextCodeTokenExpired identifies expired session tokens
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenInvalid identifies malformed or badly signed tokens
	TextCodeTokenInvalid = "TOKEN_INVALID"
	// TextCodeInvalidLink identifies absent, spent, or stale magic links
	TextCodeInvalidLink = "INVALID_OR_EXPIRED_LINK"
	// TextCodeNotAuthorized identifies emails without a whitelist entry
	TextCodeNotAuthorized = "NOT_AUTHORIZED"
	// TextCodeInvitationExpired identifies sign-up deadlines that passed
	TextCodeInvitationExpired = "INVITATION_EXPIRED"
	// TextCodeAccountDeactivated identifies soft-deleted accounts
	TextCodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	// TextCodeAccountExpired identifies accounts past their expiration date
	TextCodeAccountExpired = "ACCOUNT_EXPIRED"
)

// ErrTokenExpired is returned when a session token is past its exp claim.
var ErrTokenExpired = errors.New("authentication token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalid covers every other verification failure. Callers must not
// surface the distinction to end users.
var ErrTokenInvalid = errors.New("authentication token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from a parsed token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidOrExpiredLink is returned for links that are absent, already
// used, or past the redemption window. The caller can offer "request a new
// link" with the original email pre-filled.
var ErrInvalidOrExpiredLink = errors.New("sign-in link is invalid or has expired", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidLink).
	WithCode(errors.CodeUnauthorized)

// ErrNotAuthorized is returned when redemption finds no whitelist entry for
// an email outside the auto-approved domains.
var ErrNotAuthorized = errors.New("email is not authorized to register", errors.CategoryAuthz).
	WithTextCode(TextCodeNotAuthorized).
	WithCode(errors.CodeForbidden)

// ErrInvitationExpired blocks first-time registration once the whitelist
// entry's sign-up deadline has passed.
var ErrInvitationExpired = errors.New("invitation has expired", errors.CategoryAuthz).
	WithTextCode(TextCodeInvitationExpired).
	WithCode(errors.CodeForbidden)

// ErrAccountDeactivated is a distinct kind so the client can offer a
// different recovery path than "retry".
var ErrAccountDeactivated = errors.New("account has been deactivated", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountDeactivated).
	WithCode(errors.CodeForbidden)

// ErrAccountExpired is returned for registered users past their own
// expiration date.
var ErrAccountExpired = errors.New("account has expired", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountExpired).
	WithCode(errors.CodeForbidden)

// ErrAlreadyDeactivated is returned when deactivating a user that is
// already off.
var ErrAlreadyDeactivated = errors.New("user is already deactivated", errors.CategoryConflict).
	WithTextCode("ALREADY_DEACTIVATED").
	WithCode(errors.CodeBadRequest)

// ErrRedundantWhitelistEntry rejects whitelist entries for domains that are
// auto-approved anyway.
var ErrRedundantWhitelistEntry = errors.New("domain is auto-approved, whitelist entry is redundant", errors.CategoryValidation).
	WithTextCode("REDUNDANT_WHITELIST_ENTRY").
	WithCode(errors.CodeBadRequest)

// StatusFromError resolves the HTTP status for any error. Rich errors carry
// their own code, otherwise the category decides the tier and anything
// unanticipated collapses into a 500.
func StatusFromError(err error) (int, *errors.Error) {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	if richErr.Code != 0 {
		return richErr.Code, richErr
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return errors.CodeUnauthorized, richErr
	case errors.CategoryAuthz:
		return errors.CodeForbidden, richErr
	case errors.CategoryBadInput, errors.CategoryValidation, errors.CategoryConflict:
		return errors.CodeBadRequest, richErr
	case errors.CategoryNotFound:
		return errors.CodeNotFound, richErr
	default:
		return errors.CodeInternal, richErr
	}
}
