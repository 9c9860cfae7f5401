// Package s3store keeps one object per session in an S3-compatible bucket. The
// last-access time lives in the object's user metadata because S3 has no native
// per-object TTL that can be refreshed on touch.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MrEthical07/goSession/container"
)

// ErrS3Unavailable wraps every S3 failure other than a miss.
var ErrS3Unavailable = errors.New("s3 unavailable")

const metaLastAccessed = "last-accessed"

// API is the subset of *s3.Client the store needs.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Config configures the S3 backend.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	MaxLifetime     time.Duration
}

// NewClient builds an *s3.Client from static settings. Empty credentials fall back
// to anonymous access, which suits local S3-compatible servers.
func NewClient(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey, Source: "gosession"}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts)
}

// Store is the S3 backend provider.
type Store struct {
	api         API
	bucket      string
	prefix      string
	maxLifetime time.Duration
}

// New wraps api.
func New(api API, cfg Config) *Store {
	return &Store{api: api, bucket: cfg.Bucket, prefix: cfg.Prefix, maxLifetime: cfg.MaxLifetime}
}

func (s *Store) key(id string) string { return s.prefix + id }

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func isMiss(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func lastAccessed(meta map[string]string) (time.Time, bool) {
	raw, ok := meta[metaLastAccessed]
	if !ok {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

type conn struct {
	store *Store
	now   time.Time
	ready bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	c.now = p.Now
	if c.now.IsZero() {
		c.now = time.Now()
	}
	c.ready = true
	return nil
}

func (c *conn) check(id string) error {
	if !c.ready {
		return container.ErrNotInitialized
	}
	if !container.ValidID(id) {
		return container.ErrInvalidID
	}
	return nil
}

func (c *conn) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := c.check(id); err != nil {
		return nil, false, err
	}
	out, err := c.store.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(c.store.key(id)),
	})
	if err != nil {
		if isMiss(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
	}
	defer out.Body.Close()

	if c.store.maxLifetime > 0 {
		at, ok := lastAccessed(out.Metadata)
		if !ok || !container.Live(at, c.now, c.store.maxLifetime) {
			return nil, false, nil
		}
	}
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
	}
	return data, true, nil
}

func (c *conn) put(ctx context.Context, id string, payload []byte) error {
	_, err := c.store.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.store.bucket),
		Key:         aws.String(c.store.key(id)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{metaLastAccessed: strconv.FormatInt(c.now.Unix(), 10)},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrS3Unavailable, err)
	}
	return nil
}

func (c *conn) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	if err := c.check(id); err != nil {
		return false, err
	}
	if err := c.put(ctx, id, payload); err != nil {
		return false, err
	}
	return true, nil
}

// Touch rewrites the object with the current payload and a fresh timestamp. S3 cannot
// update metadata in place.
func (c *conn) Touch(ctx context.Context, id string, payload []byte) (bool, error) {
	if err := c.check(id); err != nil {
		return false, err
	}
	_, err := c.store.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(c.store.key(id)),
	})
	if err != nil {
		if isMiss(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
	}
	if err := c.put(ctx, id, payload); err != nil {
		return false, err
	}
	return true, nil
}

func (c *conn) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	p := s3.NewListObjectsV2Paginator(c.store.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.store.bucket),
		Prefix: aws.String(c.store.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			head, err := c.store.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(c.store.bucket), Key: obj.Key})
			if err != nil {
				if isMiss(err) {
					continue
				}
				return false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
			}
			at, ok := lastAccessed(head.Metadata)
			if !ok && obj.LastModified != nil {
				at, ok = *obj.LastModified, true
			}
			if ok && container.Live(at, c.now, maxLifetime) {
				continue
			}
			if _, err := c.store.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.store.bucket), Key: obj.Key}); err != nil {
				return false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
			}
		}
	}
	return true, nil
}

func (c *conn) Delete(ctx context.Context, id string) (bool, error) {
	if err := c.check(id); err != nil {
		return false, err
	}
	_, err := c.store.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.store.bucket),
		Key:    aws.String(c.store.key(id)),
	})
	if err != nil && !isMiss(err) {
		return false, fmt.Errorf("%w: %v", ErrS3Unavailable, err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
