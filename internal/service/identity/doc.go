// Package identity drives sending-domain identities through DNS-based
// verification against the mail provider.
//
// The service layer owns the provisioning saga (DKIM tokens, mail-from,
// configuration set, with compensating rollback of provider-side state),
// verification re-derivation, tracking configuration, and deprovisioning.
// It depends on the Repository and Provider interfaces defined in this
// package and should never import from the API layer.
//
// Repository implementations live in repository/postgres/.
package identity
