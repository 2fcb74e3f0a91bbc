package s3

import (
	"context"
	"io"

	"github.com/jmgilman/depsync/archive"
	"github.com/jmgilman/depsync/errors"
	"github.com/minio/minio-go/v7"
)

// minioStore implements objectStore on a minio client.
type minioStore struct {
	client *minio.Client
	bucket string
}

func (s *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	translated := translate(err, key)
	if errors.GetCode(translated) == errors.CodeNotFound {
		return false, nil
	}
	return false, translated
}

func (s *minioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: archive.MediaType,
	})
	if err != nil {
		return translate(err, key)
	}
	return nil
}

// Get returns a reader for key. GetObject is lazy, so the object is statted
// first to surface a missing key here rather than on the first Read.
func (s *minioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, key)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translate(err, key)
	}
	return obj, nil
}

// translate maps minio error responses to platform error codes.
func translate(err error, key string) error {
	if err == nil {
		return nil
	}

	ctx := map[string]interface{}{"key": key}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return errors.WrapWithContext(err, errors.CodeNotFound, "object not found", ctx)
	case "NoSuchBucket":
		return errors.WrapWithContext(err, errors.CodeInvalidConfig, "bucket does not exist", ctx)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.WrapWithContext(err, errors.CodeInvalidConfig, "access denied", ctx)
	}
	return errors.WrapWithContext(err, errors.CodeNetwork, "s3 request failed", ctx)
}
