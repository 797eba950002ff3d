// Package blobstore keeps artifact bytes, keyed by artifact filename.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// BlobStore is the byte storage behind artifacts.
//
// Get returns common.ErrNotFound when the key is absent. Delete returns it
// too when the store can tell the key was already gone; S3 itself cannot, so
// there an absent key deletes silently.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// validateKey accepts flat or slash-separated relative keys only.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("blob key must be relative")
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
