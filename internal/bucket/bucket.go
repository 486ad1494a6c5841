// Package bucket constructs the object store backing price data and
// published artifacts.
package bucket

import (
	"fmt"

	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"

	"github.com/quantio/quantd/internal/loader"
)

// New opens the configured object store provider.
func New(cfg loader.BucketConfig) (objstore.Bucket, error) {
	switch cfg.Provider {
	case "filesystem":
		return filesystem.NewBucket(cfg.Filesystem.Directory)
	case "s3":
		return s3.NewBucketWithConfig(nil, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Insecure:  cfg.S3.Insecure,
		}, "quantd")
	default:
		return nil, fmt.Errorf("unknown bucket provider %q", cfg.Provider)
	}
}
