// Package llm contains the generation-provider client and the ordered
// model-fallback caller used by the oracle endpoint.
package llm

import "context"

// Turn roles as they appear on the wire. The frontend (and Gemini) call the
// assistant side "model"; the persistence layer maps it to "assistant".
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of the conversation history sent to a provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a reply for a conversation using a specific model.
// Implementations must honor ctx for cancellation and deadlines; the
// fallback caller relies on that to bound each attempt.
type Provider interface {
	Generate(ctx context.Context, model string, turns []Turn, systemPrompt string) (string, error)
}
