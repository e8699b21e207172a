// Package storage provides the on-disk working area for renders.
// LocalStorage owns the root temp directory and hands out one Scope per
// render; every file a render creates is registered with its Scope and
// removed when the Scope is released. S3Reader lets assets be pulled from
// S3-compatible object storage.
package storage

import (
	"context"
	"io"

	"github.com/maauso/audiogram-api/internal/domain"
)

// Asset is a locally materialized copy of a fetched or derived resource.
// It is only valid while its owning Scope is open.
type Asset struct {
	Path string
	Size int64
	Kind domain.AssetKind
}

// ObjectReader opens objects from a bucket-addressed store.
type ObjectReader interface {
	// Open returns a reader for bucket/key. The caller closes it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
