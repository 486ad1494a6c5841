package artifact

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/thanos-io/objstore"

	"github.com/quantio/quantd/internal/errors"
)

func newTestPublisher(t *testing.T) (*Publisher, objstore.Bucket) {
	t.Helper()
	bucket := objstore.NewInMemBucket()
	p := NewPublisher(bucket, Options{
		Prefix:     "users",
		BaseURL:    "http://localhost:8080",
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		TTL:        time.Hour,
	})
	return p, bucket
}

func TestPublish(t *testing.T) {
	p, bucket := newTestPublisher(t)
	ctx := context.Background()

	key, err := p.Publish(ctx, "chat1", "pricing_data.json", []byte(`{"rows":[]}`))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.HasPrefix(key, "users/chat1/") || !strings.HasSuffix(key, "-pricing_data.json") {
		t.Errorf("key = %q", key)
	}

	rc, err := bucket.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != `{"rows":[]}` {
		t.Errorf("stored content = %s", content)
	}

	// Re-publishing the same name gets a distinct key.
	key2, err := p.Publish(ctx, "chat1", "pricing_data.json", []byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if key2 == key {
		t.Error("publish reused an object key")
	}
}

func TestSignURLVerifies(t *testing.T) {
	p, _ := newTestPublisher(t)

	signed := p.SignURL("users/chat1/abc-data.json")
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("signed URL unparseable: %v", err)
	}
	if !strings.HasPrefix(u.Path, "/artifacts/users/chat1/") {
		t.Errorf("path = %q", u.Path)
	}

	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("expires param: %v", err)
	}
	sig := u.Query().Get("sig")

	if err := p.Verify("users/chat1/abc-data.json", expires, sig); err != nil {
		t.Errorf("fresh signature rejected: %v", err)
	}
}

func TestVerifyRejectsTamper(t *testing.T) {
	p, _ := newTestPublisher(t)

	expires := time.Now().Add(time.Hour).Unix()
	signed := p.SignURL("users/chat1/abc-data.json")
	u, _ := url.Parse(signed)
	sig := u.Query().Get("sig")
	goodExpires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)

	if err := p.Verify("users/chat2/other.json", goodExpires, sig); !errors.Is(err, errors.ErrInvalidSignature) {
		t.Errorf("key swap: error = %v", err)
	}
	if err := p.Verify("users/chat1/abc-data.json", expires+9999, sig); !errors.Is(err, errors.ErrInvalidSignature) {
		t.Errorf("expiry extension: error = %v", err)
	}
	if err := p.Verify("users/chat1/abc-data.json", goodExpires, "deadbeef"); !errors.Is(err, errors.ErrInvalidSignature) {
		t.Errorf("forged signature: error = %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	p, _ := newTestPublisher(t)

	expires := time.Now().Add(-time.Minute).Unix()
	err := p.Verify("users/chat1/abc-data.json", expires, "irrelevant")
	if !errors.Is(err, errors.ErrSignatureExpired) {
		t.Errorf("error = %v, want expired", err)
	}
	if !errors.IsAuthError(err) {
		t.Errorf("expiry should classify as an auth error")
	}
}

func TestOpen(t *testing.T) {
	p, _ := newTestPublisher(t)
	ctx := context.Background()

	key, err := p.Publish(ctx, "chat1", "data.json", []byte("42"))
	if err != nil {
		t.Fatal(err)
	}

	rc, err := p.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "42" {
		t.Errorf("content = %s", content)
	}

	if _, err := p.Open(ctx, "users/chat1/missing.json"); !errors.IsNotFound(err) {
		t.Errorf("missing key: error = %v", err)
	}
}

func TestEphemeralKey(t *testing.T) {
	bucket := objstore.NewInMemBucket()
	a := NewPublisher(bucket, Options{BaseURL: "http://x", TTL: time.Hour})
	b := NewPublisher(bucket, Options{BaseURL: "http://x", TTL: time.Hour})

	signed := a.SignURL("k")
	u, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	sig := u.Query().Get("sig")

	if err := a.Verify("k", expires, sig); err != nil {
		t.Errorf("own signature rejected: %v", err)
	}
	if err := b.Verify("k", expires, sig); err == nil {
		t.Error("another process's ephemeral key should not verify")
	}
}
