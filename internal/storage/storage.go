package storage

import (
	"context"
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage is durable blob storage for uploaded images, keyed by generated
// filename. Works with the local disk backend or any S3-compatible service.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	URL(name string) string
}

// NewName generates a durable filename for an upload, keeping the original
// extension so the file can be served statically with the right content type.
func NewName(original string) string {
	return "img-" + uuid.NewString() + filepath.Ext(original)
}
