package object

import (
	"context"
	"io"
)

// ObjectStore persists generated assets (word-cloud images) under stable
// keys so repeated renders overwrite rather than accumulate.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
