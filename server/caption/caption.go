package caption

import (
	"context"

	"github.com/cyclopcam/threatwatch/server/camera"
)

// Provider describes an image in natural language.
// Generate never fails. When the backend is unavailable, a deterministic fallback description is returned.
type Provider interface {
	Generate(ctx context.Context, frame *camera.Frame, prompt string) string

	// Release any transient resources held by the backend (eg GPU memory).
	// Called after every summary generation, whether it succeeded or not.
	ClearCache()
}
