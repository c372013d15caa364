// Package embedding turns image bytes into vectors by calling an external
// embedding service, with optional caching and circuit breaking layered on top.
package embedding

import "context"

// Client produces an embedding vector for an image.
type Client interface {
	// Embed returns the embedding for image. filename is forwarded to the service
	// and used to guess the content type; it may be empty.
	Embed(ctx context.Context, image []byte, filename string) ([]float32, error)
	Close() error
}
