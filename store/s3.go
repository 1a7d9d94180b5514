package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
)

// S3API is the subset of the S3 client used by the store (allows mocking).
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores each entity as a JSON object at <prefix>/<entity>/<id>.json.
type S3 struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

var _ Repository = (*S3)(nil)

// NewS3 returns a repository writing to bucket under prefix.
func NewS3(client S3API, bucket, prefix string, logger *zap.Logger) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: S3 client is required", dbcrypt.ErrInvalidConfiguration)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger}, nil
}

func (s *S3) dir(typ *dbcrypt.EntityType) string {
	return path.Join(s.prefix, typ.Name()) + "/"
}

func (s *S3) key(typ *dbcrypt.EntityType, id uuid.UUID) string {
	return s.dir(typ) + id.String() + ".json"
}

func (s *S3) Save(ctx context.Context, e *dbcrypt.Entity) error {
	data, err := encodeBag(e)
	if err != nil {
		return err
	}
	key := s.key(e.Type(), e.ID())
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("%w: put s3://%s/%s: %w", dbcrypt.ErrDatabaseUnavailable, s.bucket, key, err)
	}
	s.logger.Debug("entity uploaded", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}

func (s *S3) Load(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) (*dbcrypt.Entity, error) {
	key := s.key(typ, id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, notFound(typ, id)
		}
		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", dbcrypt.ErrDatabaseUnavailable, s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3://%s/%s: %w", dbcrypt.ErrDatabaseUnavailable, s.bucket, key, err)
	}
	return decodeBag(typ, id, data)
}

// Delete removes the object. S3 deletes are idempotent, so a missing entity
// is not reported.
func (s *S3) Delete(ctx context.Context, typ *dbcrypt.EntityType, id uuid.UUID) error {
	key := s.key(typ, id)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("%w: delete s3://%s/%s: %w", dbcrypt.ErrDatabaseUnavailable, s.bucket, key, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, typ *dbcrypt.EntityType) ([]uuid.UUID, error) {
	dir := s.dir(typ)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})

	var ids []uuid.UUID
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3://%s/%s: %w", dbcrypt.ErrDatabaseUnavailable, s.bucket, dir, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(obj.Key), dir), ".json")
			id, err := uuid.Parse(name)
			if err != nil {
				s.logger.Warn("skipping object with invalid id", zap.String("key", aws.ToString(obj.Key)))
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
