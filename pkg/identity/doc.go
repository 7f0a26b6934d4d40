// Package identity is the boundary to the external identity provider.
//
// Two directions cross it. Inbound, an Authenticator turns a bearer token
// into the provider's subject identifier; the guard then looks the subject
// up as a live actor. Outbound, a ClaimsPublisher pushes an actor's role and
// organization into the provider's public metadata after a role change so
// that freshly issued sessions carry them.
//
// Pushed claims are a convenience for clients. Nothing in this module reads
// them back for enforcement.
package identity
