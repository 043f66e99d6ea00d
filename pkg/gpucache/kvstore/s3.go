package kvstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/buildbarn/gpucache/pkg/util"
)

// s3Client is the subset of *s3.Client this backend calls, following the
// teacher's pkg/cloud/aws.S3Client convention of narrowing the real SDK
// client down to an interface for testability.
type s3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ s3Client = (*s3.Client)(nil)

// S3 is a key/value backend storing each entry as one object in an S3
// bucket, keyed by the hex encoding of the cache key.
type S3 struct {
	client      s3Client
	bucket      string
	keyPrefix   string
	errorLogger util.ErrorLogger
}

// NewS3 returns an S3 backend writing objects into bucket under
// keyPrefix, using client for all requests.
func NewS3(client *s3.Client, bucket, keyPrefix string, errorLogger util.ErrorLogger) *S3 {
	return &S3{client: client, bucket: bucket, keyPrefix: keyPrefix, errorLogger: errorLogger}
}

func (s *S3) objectKey(key []byte) string {
	return s.keyPrefix + hex.EncodeToString(key)
}

func (s *S3) logError(err error) {
	if err != nil && s.errorLogger != nil {
		s.errorLogger.Log(err)
	}
}

// Load implements blobcache.LoadFunc. Any error, including "no such
// key", is treated as a miss: the external store's job is only to tell
// LoadOrRun whether a usable entry exists, and errors are diagnostic
// information for errorLogger, not a distinct outcome BlobCache acts on.
func (s *S3) Load(key []byte, out []byte) int {
	result, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return 0
	}
	if err != nil {
		s.logError(err)
		return 0
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		s.logError(err)
		return 0
	}
	if out == nil {
		return len(data)
	}
	copy(out, data)
	return len(data)
}

// Store implements blobcache.StoreFunc.
func (s *S3) Store(key []byte, value []byte) {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	s.logError(err)
}
