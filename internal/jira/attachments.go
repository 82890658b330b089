package jira

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"log/slog"

	"github.com/trellis-eng/rally2jira/internal/rally"
)

// DefaultPresignExpiry is the retrieval URL lifetime when none is configured.
const DefaultPresignExpiry = 600 * time.Second

// BlobStore is the subset of the object store the resolver needs.
type BlobStore interface {
	Upload(ctx context.Context, key, path string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// AttachmentResolver locates cached attachment blobs on disk and turns
// them into time-limited retrieval URLs backed by the blob store.
type AttachmentResolver struct {
	cache      *rally.Cache
	store      BlobStore
	expiry     time.Duration
	skipUpload bool
	logger     *slog.Logger
}

// NewAttachmentResolver creates a resolver. A zero expiry selects
// DefaultPresignExpiry. skipUpload presigns without re-uploading, for
// re-runs where the bucket is already populated.
func NewAttachmentResolver(cache *rally.Cache, store BlobStore, expiry time.Duration, skipUpload bool, logger *slog.Logger) *AttachmentResolver {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	return &AttachmentResolver{
		cache:      cache,
		store:      store,
		expiry:     expiry,
		skipUpload: skipUpload,
		logger:     logger,
	}
}

// Locate returns the on-disk blob path for ref and whether it exists.
func (r *AttachmentResolver) Locate(ref rally.AttachmentRef) (string, bool) {
	return r.cache.AttachmentPath(ref), r.cache.HasAttachment(ref)
}

// RetrievalURL uploads the blob at blobPath (unless skipped) under a
// key derived from the attachment's object id and returns a presigned
// GET URL for it.
func (r *AttachmentResolver) RetrievalURL(ctx context.Context, ref rally.AttachmentRef, blobPath string) (string, error) {
	key := path.Join("attachments", strconv.FormatInt(ref.ObjectID, 10), filepath.Base(blobPath))
	if !r.skipUpload {
		if err := r.store.Upload(ctx, key, blobPath); err != nil {
			return "", fmt.Errorf("upload attachment %d: %w", ref.ObjectID, err)
		}
	}
	url, err := r.store.PresignGet(ctx, key, r.expiry)
	if err != nil {
		return "", fmt.Errorf("presign attachment %d: %w", ref.ObjectID, err)
	}
	return url, nil
}
