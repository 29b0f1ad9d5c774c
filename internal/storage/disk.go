package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Disk stores blobs as files under a fixed root directory. The root is
// served statically at /uploads by the HTTP layer.
type Disk struct {
	Root string
}

func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload dir %q: %w", root, err)
	}
	return &Disk{Root: root}, nil
}

func (d *Disk) path(name string) string {
	// filepath.Base strips any path components a client could smuggle in.
	return filepath.Join(d.Root, filepath.Base(name))
}

func (d *Disk) Save(ctx context.Context, name string, r io.Reader) error {
	f, err := os.Create(d.path(name))
	if err != nil {
		return fmt.Errorf("storage: create %q: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(d.path(name))
		return fmt.Errorf("storage: write %q: %w", name, err)
	}
	return nil
}

func (d *Disk) Delete(ctx context.Context, name string) error {
	if err := os.Remove(d.path(name)); err != nil {
		return fmt.Errorf("storage: delete %q: %w", name, err)
	}
	return nil
}

func (d *Disk) URL(name string) string {
	return "/uploads/" + filepath.Base(name)
}
