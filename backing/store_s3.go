package backing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

/* Store records via s3 provider. */
type StoreS3 struct {
	client *minio.Client
	bucket string
	prefix string
}

/** Creates a new S3 store with static credentials. */
func NewS3Store(ctx context.Context, endpoint string, accessKey string, secretKey string, secure bool, bucket string, region string, prefix string) (*StoreS3, error) {
	opts := minio.Options{
		Secure: secure,
		Region: region,
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
	}
	return newS3Store(ctx, endpoint, &opts, bucket, prefix)
}

/** Creates a new S3 store using IAM credentials. */
func NewS3StoreIAM(ctx context.Context, endpoint string, secure bool, bucket string, region string, prefix string) (*StoreS3, error) {
	opts := minio.Options{
		Secure: secure,
		Region: region,
		Creds:  credentials.NewIAM(""),
	}
	return newS3Store(ctx, endpoint, &opts, bucket, prefix)
}

func newS3Store(ctx context.Context, endpoint string, opts *minio.Options, bucket string, prefix string) (*StoreS3, error) {
	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, err
	}
	b, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !b {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: opts.Region})
	}
	if err != nil {
		return nil, err
	}
	return &StoreS3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (s *StoreS3) Backend() string { return "s3" }

func (s *StoreS3) objectName(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

// s3Error converts a minio error into NotFoundError or AccessError.
func s3Error(err error) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NoSuchBucket" {
		return fmt.Errorf("%w", &NotFoundError{})
	}
	if code == "" {
		return fmt.Errorf("%w", &AccessError{msg: fmt.Sprintf("%v", err)})
	}
	return fmt.Errorf("%w", &AccessError{msg: code})
}

func (s *StoreS3) Fetch(ctx context.Context, id string) ([]byte, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "fetch", err)
	}()
	if err = checkID(id); err != nil {
		return nil, err
	}
	reader, err := s.client.GetObject(ctx, s.bucket, s.objectName(id), minio.GetObjectOptions{})
	if err != nil {
		err = s3Error(err)
		return nil, err
	}
	defer reader.Close()
	// GetObject is lazy, missing objects are reported by the first read
	data, err := io.ReadAll(reader)
	if err != nil {
		err = s3Error(err)
		return nil, err
	}
	return data, nil
}

func (s *StoreS3) Exists(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "exists", err)
	}()
	if err = checkID(id); err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, s.objectName(id), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	err = s3Error(err)
	if IsNotFound(err) {
		err = nil
		return false, nil
	}
	return false, err
}

func (s *StoreS3) Put(ctx context.Context, id string, data []byte) error {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "put", err)
	}()
	if err = checkID(id); err != nil {
		return err
	}
	options := minio.PutObjectOptions{ContentType: "binary/octet-stream"}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectName(id), bytes.NewReader(data), int64(len(data)), options)
	return err
}

func (s *StoreS3) Delete(ctx context.Context, id string) (bool, error) {
	var err error
	startTime := time.Now().UnixNano()
	defer func() {
		reportBackingOpMetric(s.Backend(), startTime, "delete", err)
	}()
	if err = checkID(id); err != nil {
		return false, err
	}
	// a timing issue exists here as the stat and delete are not atomic operations
	name := s.objectName(id)
	_, err = s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		err = s3Error(err)
		return false, err
	}
	err = s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
	if err != nil {
		err = s3Error(err)
		return false, err
	}
	return true, nil
}

func (s *StoreS3) List(ctx context.Context, fn func(id string) error) error {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}
	// cancelling stops the listing goroutine if fn bails out early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return s3Error(obj.Err)
		}
		if err := fn(strings.TrimPrefix(obj.Key, opts.Prefix)); err != nil {
			return err
		}
	}
	return ctx.Err()
}
