package interfaces

import (
	"context"

	"relaychat/pkg/types"
)

// Responder generates an automated reply for a prompt with prior
// conversation turns as context. Errors are expected and fully handled by
// the intake pipeline; a failed generation never fails the triggering
// submission.
type Responder interface {
	Generate(ctx context.Context, prompt string, history []types.Turn) (string, error)
}
