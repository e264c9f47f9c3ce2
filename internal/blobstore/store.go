package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"

	defaultMaxObjectSize int64 = 4 << 20
)

var (
	ErrInvalidConfig = errors.New("blobstore: invalid config")
	ErrInvalidKey    = errors.New("blobstore: invalid key")
	ErrNotFound      = errors.New("blobstore: not found")
	ErrExists        = errors.New("blobstore: object exists")
	ErrTooLarge      = errors.New("blobstore: object too large")
)

// Store holds write-once payloads (quest descriptions, proof bundles).
// Objects are never overwritten: a second Create on the same key fails with
// ErrExists.
type Store interface {
	Create(ctx context.Context, key string, payload []byte, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	LastModified time.Time
}

type Config struct {
	Driver string
	Prefix string

	// MaxObjectSize bounds both Create and Get. Defaults to 4 MiB when <= 0.
	MaxObjectSize int64

	// S3 fields.
	Bucket   string
	S3Client S3Client

	// Now is used by the memory driver.
	Now func() time.Time
}

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func New(cfg Config) (Store, error) {
	limit := cfg.MaxObjectSize
	if limit <= 0 {
		limit = defaultMaxObjectSize
	}
	switch normalizeDriver(cfg.Driver) {
	case DriverMemory:
		now := cfg.Now
		if now == nil {
			now = time.Now
		}
		return &memoryStore{
			prefix:  normalizePrefix(cfg.Prefix),
			limit:   limit,
			now:     now,
			objects: make(map[string]Object),
		}, nil
	case DriverS3:
		bucket := strings.TrimSpace(cfg.Bucket)
		if bucket == "" {
			return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidConfig)
		}
		if cfg.S3Client == nil {
			return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidConfig)
		}
		return &s3Store{
			client: cfg.S3Client,
			bucket: bucket,
			prefix: normalizePrefix(cfg.Prefix),
			limit:  limit,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func normalizeDriver(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return DriverS3
	}
	return v
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// objectKey validates a logical key and joins it under prefix.
func objectKey(prefix, key string) (string, error) {
	if key != strings.TrimSpace(key) {
		return "", fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: key contains control characters", ErrInvalidKey)
		}
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: bad path segment in %q", ErrInvalidKey, key)
		}
	}
	if prefix == "" {
		return key, nil
	}
	return prefix + "/" + key, nil
}

type memoryStore struct {
	mu      sync.RWMutex
	prefix  string
	limit   int64
	now     func() time.Time
	objects map[string]Object
}

func (m *memoryStore) Create(_ context.Context, key string, payload []byte, contentType string) error {
	full, err := objectKey(m.prefix, key)
	if err != nil {
		return err
	}
	if int64(len(payload)) > m.limit {
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrTooLarge, len(payload), m.limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[full]; ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	m.objects[full] = Object{
		Key:          key,
		Data:         bytes.Clone(payload),
		ContentType:  strings.TrimSpace(contentType),
		LastModified: m.now().UTC(),
	}
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (Object, error) {
	full, err := objectKey(m.prefix, key)
	if err != nil {
		return Object{}, err
	}

	m.mu.RLock()
	obj, ok := m.objects[full]
	m.mu.RUnlock()
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	obj.Data = bytes.Clone(obj.Data)
	return obj, nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := objectKey(m.prefix, key)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.objects[full]
	m.mu.RUnlock()
	return ok, nil
}

type s3Store struct {
	client S3Client
	bucket string
	prefix string
	limit  int64
}

func (s *s3Store) Create(ctx context.Context, key string, payload []byte, contentType string) error {
	full, err := objectKey(s.prefix, key)
	if err != nil {
		return err
	}
	if int64(len(payload)) > s.limit {
		return fmt.Errorf("%w: %d bytes exceeds max %d", ErrTooLarge, len(payload), s.limit)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(payload),
		IfNoneMatch: aws.String("*"),
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if hasErrorCode(err, "PreconditionFailed", "ConditionalRequestConflict", "412") {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("blobstore/s3: put %q: %w", key, err)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, key string) (Object, error) {
	full, err := objectKey(s.prefix, key)
	if err != nil {
		return Object{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if hasErrorCode(err, "NoSuchKey", "NotFound", "404") {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Object{}, fmt.Errorf("blobstore/s3: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, s.limit+1))
	if err != nil {
		return Object{}, fmt.Errorf("blobstore/s3: read %q: %w", key, err)
	}
	if int64(len(data)) > s.limit {
		return Object{}, fmt.Errorf("%w: key %q exceeds max %d bytes", ErrTooLarge, key, s.limit)
	}
	return Object{
		Key:          key,
		Data:         data,
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	full, err := objectKey(s.prefix, key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if hasErrorCode(err, "NoSuchKey", "NotFound", "404") {
			return false, nil
		}
		return false, fmt.Errorf("blobstore/s3: head %q: %w", key, err)
	}
	return true, nil
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
