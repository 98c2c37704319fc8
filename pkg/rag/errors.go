package rag

import "errors"

// ErrStoreUnavailable wraps any chunk store failure (metadata listing or
// content fetch). It always resolves into an error-shaped Response; no partial
// answer is ever built on top of it.
var ErrStoreUnavailable = errors.New("chunk store unavailable")

// IsStoreUnavailable lets callers branch on store outages with a typed check
// instead of string parsing.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
