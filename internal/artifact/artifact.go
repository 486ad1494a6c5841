// Package artifact publishes processed datasets to the object store
// and hands out time-limited signed download URLs for them.
//
// The store itself has no notion of presigned links, so URLs are
// HMAC-signed by this process and verified by the download handler:
// the link carries the object key, an expiry, and a signature over
// both.
package artifact

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/thanos-io/objstore"

	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
)

var log = logging.Component("artifact")

// Publisher writes artifacts into the object store under a fixed
// prefix and signs download URLs for them.
type Publisher struct {
	bucket  objstore.Bucket
	prefix  string
	baseURL string
	key     []byte
	ttl     time.Duration
}

// Options configures a Publisher.
type Options struct {
	// Prefix is the object key prefix artifacts live under.
	Prefix string

	// BaseURL is the externally reachable server base, without a
	// trailing slash, e.g. "http://localhost:8080".
	BaseURL string

	// SigningKey is the HMAC key. Empty generates an ephemeral key, so
	// links stop verifying across restarts.
	SigningKey []byte

	// TTL is how long signed URLs stay valid.
	TTL time.Duration
}

// NewPublisher creates a publisher over the given bucket.
func NewPublisher(bucket objstore.Bucket, opts Options) *Publisher {
	key := opts.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("artifact: entropy source unavailable: %v", err))
		}
		log.Warn("no signing key configured, using ephemeral key: links will not survive restarts")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Publisher{
		bucket:  bucket,
		prefix:  opts.Prefix,
		baseURL: opts.BaseURL,
		key:     key,
		ttl:     ttl,
	}
}

// Publish uploads content under users/<session>/<ulid>-<name> and
// returns the object key.
func (p *Publisher) Publish(ctx context.Context, sessionID, name string, content []byte) (string, error) {
	id := ulid.Make()
	key := fmt.Sprintf("%s/%s/%s-%s", p.prefix, sessionID, id.String(), name)

	if err := p.bucket.Upload(ctx, key, bytes.NewReader(content)); err != nil {
		return "", errors.Wrapf(err, "upload artifact %s", key)
	}
	log.Info("published artifact", "key", key, "bytes", len(content))
	return key, nil
}

// SignURL builds a signed download URL for an object key, valid for
// the publisher's TTL.
func (p *Publisher) SignURL(key string) string {
	expires := time.Now().Add(p.ttl).Unix()
	sig := p.sign(key, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/artifacts/%s?%s", p.baseURL, key, q.Encode())
}

// Verify checks a download request's signature and expiry.
func (p *Publisher) Verify(key string, expires int64, sig string) error {
	if time.Now().Unix() > expires {
		return errors.Wrapf(errors.ErrSignatureExpired, "key %s", key)
	}
	expected := p.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.Wrapf(errors.ErrInvalidSignature, "key %s", key)
	}
	return nil
}

// Open streams an artifact's content. Fails with ErrNotFound for
// absent keys.
func (p *Publisher) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := p.bucket.Get(ctx, key)
	if err != nil {
		if p.bucket.IsObjNotFoundErr(err) {
			return nil, errors.NewNotFound("artifact", key)
		}
		return nil, errors.Wrapf(err, "open artifact %s", key)
	}
	return rc, nil
}

func (p *Publisher) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, p.key)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
