package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBucket writes objects to a Google Cloud Storage bucket.
type GCSBucket struct {
	client *gcs.Client
	name   string
}

// NewGCSBucket connects with application default credentials unless opts
// say otherwise.
func NewGCSBucket(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSBucket, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBucket{client: client, name: bucket}, nil
}

func (b *GCSBucket) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	if !validName(name) {
		return Object{}, ErrInvalidName
	}

	// Object attributes must be set before the first Write, so the clip is
	// buffered to hash it up front. Clips are a few seconds of audio.
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("read clip: %w", err)
	}
	sum, err := ComputeChecksum(bytes.NewReader(data))
	if err != nil {
		return Object{}, err
	}

	w := b.client.Bucket(b.name).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"sha256": hex.EncodeToString(sum[:])}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return Object{}, fmt.Errorf("write gs://%s/%s: %w", b.name, name, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("finalize gs://%s/%s: %w", b.name, name, err)
	}

	return Object{
		Bucket:      b.name,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    sum,
	}, nil
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}
