// Package identity produces public conversation identifiers.
package identity

import "github.com/google/uuid"

// New returns a globally-unique, unguessable identifier suitable for use
// as a client-visible conversation token. Never fails; no ordering
// guarantee.
func New() string {
	return uuid.New().String()
}
