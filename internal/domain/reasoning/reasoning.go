package reasoning

import (
	"context"

	domainimage "shravan-server-go/internal/domain/image"
)

// Invoker is the multimodal reasoning collaborator. Implementations are
// created once at startup and must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	// SystemPrompt fixes persona and tone. It never carries user content.
	SystemPrompt string
	Prompt       string
	// Frame is attached inline when present.
	Frame     *domainimage.Frame
	MaxTokens int
}

type Response struct {
	Text  string
	Model string
}
