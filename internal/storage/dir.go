package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirBucket stores objects as files in a local directory. Useful when
// running without cloud credentials.
type DirBucket struct {
	root string
}

func NewDirBucket(root string) (*DirBucket, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &DirBucket{root: root}, nil
}

func (b *DirBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	if !validName(name) || filepath.Base(name) != name {
		return Object{}, ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	tmp, err := os.CreateTemp(b.root, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hr := newHashingReader(r)
	if _, err := io.Copy(tmp, hr); err != nil {
		return Object{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.root, name)); err != nil {
		return Object{}, fmt.Errorf("rename %s: %w", name, err)
	}

	return Object{
		Bucket:      b.root,
		Name:        name,
		ContentType: contentType,
		Size:        hr.size,
		Checksum:    hr.sum(),
	}, nil
}

func (b *DirBucket) Close() error { return nil }
