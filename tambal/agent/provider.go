package agent

import (
	"context"
)

// Remote llm backend that serve the candidate models.
// Chat never returns an error, failures are tagged in the Result.
type Provider interface {
	Chat(ctx context.Context, model string, msgs []*Message) Result
}
