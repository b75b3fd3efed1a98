package intake

import "errors"

// ErrStorageFailure wraps persistence errors surfaced to the submitting
// event handler. Other conversations are unaffected; the registry is left
// untouched when persistence fails.
var ErrStorageFailure = errors.New("message persistence failed")
