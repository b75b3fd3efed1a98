package interfaces

import "errors"

// ErrConversationNotFound signals an unknown conversation id on a read
// path. Event-facing callers convert it to an empty result rather than a
// client-visible failure.
var ErrConversationNotFound = errors.New("conversation not found")
