// Package storage writes uploaded clips to an object store.
package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"hash"
	"io"
	"strings"
)

var ErrInvalidName = errors.New("storage: invalid object name")

// Object describes a stored blob.
type Object struct {
	Bucket      string
	Name        string
	ContentType string
	Size        int64
	Checksum    [32]byte
}

// Bucket stores blobs under flat names.
type Bucket interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error)
	Close() error
}

// ComputeChecksum calculates the SHA256 of everything read from r.
func ComputeChecksum(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// hashingReader counts and hashes bytes as they stream through.
type hashingReader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.size += int64(n)
	hr.h.Write(p[:n])
	return n, err
}

func (hr *hashingReader) sum() [32]byte {
	var sum [32]byte
	copy(sum[:], hr.h.Sum(nil))
	return sum
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\\x00")
}
