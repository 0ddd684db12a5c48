package send

import "github.com/ignite/courier/internal/pkg/apperr"

var (
	// ErrIdentityNotFound means no provisioned identity covers the sender
	// address's domain.
	ErrIdentityNotFound = apperr.New(apperr.NotFound, "no identity registered for sender domain")
	// ErrIdentityNotVerified means the sender's identity exists but has not
	// completed DNS verification.
	ErrIdentityNotVerified = apperr.New(apperr.Validation, "sender identity is not verified")
	// ErrInvalidAddress means the from or to address cannot be parsed.
	ErrInvalidAddress = apperr.New(apperr.Validation, "invalid email address")
	// ErrEmptyBody means the request carries neither a text nor an HTML body.
	ErrEmptyBody = apperr.New(apperr.Validation, "message requires a text or html body")
	// ErrProjectNotConfigured means the project has no sending credentials
	// on file.
	ErrProjectNotConfigured = apperr.New(apperr.Conflict, "project has no sending credentials configured")
	// ErrMessageNotFound means the requested message does not exist in the
	// caller's project.
	ErrMessageNotFound = apperr.New(apperr.NotFound, "message not found")
)
