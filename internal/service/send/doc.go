// Package send implements the outbound send pipeline: sender resolution
// against a verified identity, rate admission through the shared governor,
// message persistence, and provider dispatch. Every accepted request
// leaves an auditable Message row behind, whether or not the provider
// took the mail.
package send
