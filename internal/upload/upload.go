// Package upload turns a recorded clip into a storage object.
package upload

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"go.uber.org/zap"

	"voicecollect/internal/storage"
)

// Service names clips and hands them to the bucket.
type Service struct {
	bucket storage.Bucket
	logger *zap.Logger
}

func NewService(bucket storage.Bucket, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bucket: bucket, logger: logger}
}

// Save stores one clip for word recorded in session sessionID. Exactly one
// Put is issued per successful name construction.
func (s *Service) Save(ctx context.Context, word, sessionID string, clip io.Reader) (storage.Object, error) {
	name, err := ObjectName(word, sessionID)
	if err != nil {
		return storage.Object{}, err
	}

	obj, err := s.bucket.Put(ctx, name, ContentType, clip)
	if err != nil {
		s.logger.Error("clip upload failed", zap.String("object", name), zap.Error(err))
		return storage.Object{}, fmt.Errorf("store %s: %w", name, err)
	}

	s.logger.Info("clip stored",
		zap.String("object", obj.Name),
		zap.Int64("bytes", obj.Size),
		zap.String("sha256", hex.EncodeToString(obj.Checksum[:])))
	return obj, nil
}
