package interfaces

import "context"

// IntakePipeline accepts inbound chat submissions. Submit is a no-op for
// empty, duplicate, or in-flight-duplicate content; those rejections are
// silent and return nil. Only storage failures surface to the caller.
type IntakePipeline interface {
	// Submit validates, persists, and fans out one submission.
	// originConnID identifies the authoring connection so user-authored
	// fan-out can skip it; pass "" when there is no live origin.
	Submit(ctx context.Context, conversationID, role, rawContent, originConnID string) error
}
