package identity

import "github.com/ignite/courier/internal/pkg/apperr"

// Classified errors for the identity service layer.
var (
	ErrNotFound      = apperr.New(apperr.NotFound, "identity not found")
	ErrDomainExists  = apperr.New(apperr.Conflict, "an identity already exists for this domain")
	ErrProvisioning  = apperr.New(apperr.Conflict, "identity is already being provisioned")
	ErrNoDKIMTokens  = apperr.New(apperr.Provider, "provider returned no DKIM tokens")
	ErrNotVerified   = apperr.New(apperr.Conflict, "identity not verified")
	ErrNoConfigSet   = apperr.New(apperr.Conflict, "identity has no configuration set")
	ErrInvalidDomain = apperr.New(apperr.Validation, "invalid domain name")
)
