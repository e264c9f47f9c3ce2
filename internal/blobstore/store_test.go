package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Driver: DriverMemory}},
		{name: "unsupported driver", cfg: Config{Driver: "gcs"}, wantErr: true},
		{name: "s3 missing bucket", cfg: Config{Driver: DriverS3, S3Client: &fakeS3Client{}}, wantErr: true},
		{name: "s3 missing client", cfg: Config{Driver: DriverS3, Bucket: "quest-content"}, wantErr: true},
		{name: "default driver is s3", cfg: Config{Bucket: "quest-content", S3Client: &fakeS3Client{}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store, err := New(tc.cfg)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("New: store=%v err=%v", store, err)
			}
		})
	}
}

func TestMemoryStoreWriteOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store, err := New(Config{
		Driver: DriverMemory,
		Prefix: "/quests/",
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	payload := []byte("Translate the README into Spanish.")
	if err := store.Create(ctx, "descriptions/ab12", payload, "text/plain"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, "descriptions/ab12", []byte("other"), "text/plain"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	ok, err := store.Exists(ctx, "descriptions/ab12")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	obj, err := store.Get(ctx, "descriptions/ab12")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(obj.Data, payload) || obj.ContentType != "text/plain" || !obj.LastModified.Equal(now) {
		t.Fatalf("object: %+v", obj)
	}

	obj.Data[0] = 'X'
	reload, err := store.Get(ctx, "descriptions/ab12")
	if err != nil {
		t.Fatalf("Get reload: %v", err)
	}
	if reload.Data[0] != 'T' {
		t.Fatalf("stored payload was mutated through Get")
	}

	if _, err := store.Get(ctx, "descriptions/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreMaxObjectSize(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Driver: DriverMemory, MaxObjectSize: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Create(context.Background(), "proofs/x", []byte("12345"), ""); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []string{"", "   ", "\x00bad", "\nnewline", "a//b", "proofs/../config", "./x"}
	for _, key := range tests {
		t.Run(strings.ReplaceAll(key, "\x00", "nul"), func(t *testing.T) {
			t.Parallel()
			if err := store.Create(context.Background(), key, []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Create(%q): expected ErrInvalidKey, got %v", key, err)
			}
			if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Get(%q): expected ErrInvalidKey, got %v", key, err)
			}
		})
	}
}

func TestS3StoreCreateGetExists(t *testing.T) {
	t.Parallel()

	const fullKey = "quests/proofs/77aa"
	client := &fakeS3Client{
		putFn: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			if got := aws.ToString(in.Bucket); got != "quest-content" {
				return nil, errors.New("bucket mismatch: " + got)
			}
			if got := aws.ToString(in.Key); got != fullKey {
				return nil, errors.New("key mismatch: " + got)
			}
			if got := aws.ToString(in.IfNoneMatch); got != "*" {
				return nil, errors.New("create must be conditional, got IfNoneMatch=" + got)
			}
			if got := aws.ToString(in.ContentType); got != "application/json" {
				return nil, errors.New("content type mismatch: " + got)
			}
			return &s3.PutObjectOutput{}, nil
		},
		getFn: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			if got := aws.ToString(in.Key); got != fullKey {
				return nil, errors.New("get key mismatch: " + got)
			}
			return &s3.GetObjectOutput{
				Body:        io.NopCloser(strings.NewReader(`{"pr":"https://example.test/pr/1"}`)),
				ContentType: aws.String("application/json"),
			}, nil
		},
		headFn: func(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			if got := aws.ToString(in.Key); got != fullKey {
				return nil, errors.New("head key mismatch: " + got)
			}
			return &s3.HeadObjectOutput{}, nil
		},
	}
	store, err := New(Config{
		Driver:        DriverS3,
		Bucket:        "quest-content",
		Prefix:        "quests",
		MaxObjectSize: 4 << 10,
		S3Client:      client,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := store.Create(ctx, "proofs/77aa", []byte(`{"pr":"https://example.test/pr/1"}`), "application/json"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	obj, err := store.Get(ctx, "proofs/77aa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.Key != "proofs/77aa" || obj.ContentType != "application/json" {
		t.Fatalf("object: %+v", obj)
	}
	ok, err := store.Exists(ctx, "proofs/77aa")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestS3StoreMapsAPIErrors(t *testing.T) {
	t.Parallel()

	client := &fakeS3Client{
		putFn: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			return nil, fakeAPIError{code: "PreconditionFailed", msg: "exists"}
		},
		getFn: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, fakeAPIError{code: "NoSuchKey", msg: "missing"}
		},
		headFn: func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			return nil, fakeAPIError{code: "NotFound", msg: "missing"}
		},
	}
	store, err := New(Config{Driver: DriverS3, Bucket: "quest-content", S3Client: client})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := store.Create(ctx, "descriptions/01", []byte("x"), ""); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Get(ctx, "descriptions/01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := store.Exists(ctx, "descriptions/01")
	if err != nil || ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestS3StoreMaxObjectSize(t *testing.T) {
	t.Parallel()

	client := &fakeS3Client{
		getFn: func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("this payload is too large"))}, nil
		},
	}
	store, err := New(Config{Driver: DriverS3, Bucket: "quest-content", S3Client: client, MaxObjectSize: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.Get(context.Background(), "proofs/big"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if err := store.Create(context.Background(), "proofs/big", []byte("123456789"), ""); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on create, got %v", err)
	}
}

type fakeS3Client struct {
	putFn  func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	getFn  func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	headFn func(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

func (f *fakeS3Client) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putFn == nil {
		return &s3.PutObjectOutput{}, nil
	}
	return f.putFn(ctx, in, opts...)
}

func (f *fakeS3Client) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getFn == nil {
		return nil, errors.New("unexpected GetObject call")
	}
	return f.getFn(ctx, in, opts...)
}

func (f *fakeS3Client) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headFn == nil {
		return &s3.HeadObjectOutput{}, nil
	}
	return f.headFn(ctx, in, opts...)
}

type fakeAPIError struct {
	code string
	msg  string
}

func (f fakeAPIError) ErrorCode() string             { return f.code }
func (f fakeAPIError) ErrorMessage() string          { return f.msg }
func (f fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }
func (f fakeAPIError) Error() string                 { return f.code + ": " + f.msg }
