package s3store

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/container/containertest"
)

type object struct {
	body []byte
	meta map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	puts    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]object{}} }

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body)), Metadata: o.meta}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.objects[aws.ToString(in.Key)] = object{body: body, meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: o.meta}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestConformance(t *testing.T) {
	s := New(newFakeS3(), Config{Bucket: "b", Prefix: "sess/", MaxLifetime: 30 * time.Minute})
	containertest.Conformance(t, s, time.Unix(1700000000, 0))
}

func TestExpiryFromMetadataAndGC(t *testing.T) {
	api := newFakeS3()
	s := New(api, Config{Bucket: "b", Prefix: "sess/", MaxLifetime: 30 * time.Minute})
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	at := func(ts time.Time) container.Container {
		c := s.NewContainer()
		_ = c.Init(ctx, container.InitParams{Now: ts})
		return c
	}
	if _, err := at(now.Add(-60*time.Second)).Set(ctx, "fresh", []byte("a")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := at(now.Add(-3600*time.Second)).Set(ctx, "stale", []byte("b")); err != nil {
		t.Fatalf("set: %v", err)
	}

	c := at(now)
	if _, ok, _ := c.Get(ctx, "fresh"); !ok {
		t.Fatal("fresh object must be live")
	}
	if _, ok, _ := c.Get(ctx, "stale"); ok {
		t.Fatal("stale object must be expired")
	}
	if _, err := c.GC(ctx, 30*time.Minute); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if _, ok := api.objects["sess/stale"]; ok {
		t.Fatal("gc must delete stale objects")
	}
	if _, ok := api.objects["sess/fresh"]; !ok {
		t.Fatal("gc deleted a live object")
	}
}

func TestTouchRewritesPayload(t *testing.T) {
	api := newFakeS3()
	s := New(api, Config{Bucket: "b", MaxLifetime: 30 * time.Minute})
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	c := s.NewContainer()
	_ = c.Init(ctx, container.InitParams{Now: now})
	_, _ = c.Set(ctx, "abc", []byte("cipher"))

	later := s.NewContainer()
	_ = later.Init(ctx, container.InitParams{Now: now.Add(10 * time.Minute)})
	if ok, err := later.Touch(ctx, "abc", []byte("cipher")); err != nil || !ok {
		t.Fatalf("touch: ok=%v err=%v", ok, err)
	}
	if got := api.objects["abc"].meta[metaLastAccessed]; got != "1700000600" {
		t.Fatalf("expected refreshed timestamp, got %q", got)
	}
	if string(api.objects["abc"].body) != "cipher" {
		t.Fatalf("touch must keep the payload, got %q", api.objects["abc"].body)
	}
}
