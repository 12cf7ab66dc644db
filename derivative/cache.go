package derivative

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"photogallery/errs"
	"photogallery/storage"
	"photogallery/transform"
)

const DefaultPrefix = "resized"

// TransformFunc produces a derivative from the original bytes and capability parameters
type TransformFunc func(ctx context.Context, original *storage.Blob, params map[string]string) (transform.Result, error)

type Derivative struct {
	Path        string
	Data        []byte
	ContentType string
	Hit         bool // served from the cache without transforming
}

// Cache stores derivatives in the blob store at {prefix}/{key}/{originalPath}.
// There is no locking: concurrent misses for the same derivative both
// transform and both write the same deterministic bytes.
type Cache struct {
	store  storage.BlobStore
	prefix string
	logger *slog.Logger
}

func NewCache(store storage.BlobStore, prefix string, logger *slog.Logger) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, prefix: strings.Trim(prefix, "/"), logger: logger.With("component", "derivative-cache")}
}

func (c *Cache) Path(originalPath string, key Key) string {
	return c.prefix + "/" + key.String() + "/" + originalPath
}

func (c *Cache) GetOrCreate(ctx context.Context, originalPath string, key Key, fn TransformFunc) (*Derivative, error) {
	original, err := c.store.Get(ctx, originalPath)
	if err != nil {
		return nil, err
	}
	if key.IsZero() {
		return &Derivative{Path: originalPath, Data: original.Data, ContentType: original.ContentType}, nil
	}

	cachePath := c.Path(originalPath, key)
	cached, err := c.store.Get(ctx, cachePath)
	if err == nil {
		return &Derivative{Path: cachePath, Data: cached.Data, ContentType: cached.ContentType, Hit: true}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// unreadable entries count as a miss
		c.logger.WarnContext(ctx, "cache read failed", "path", cachePath, "error", err)
	}

	result, err := fn(ctx, original, key.ToCapability())
	if err != nil {
		switch {
		case errs.KindOf(err) == errs.KindValidation, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		return nil, errs.Wrap(errs.KindTransformFailed, "image transform failed", err)
	}
	if err = c.store.Put(ctx, cachePath, result.Data, result.ContentType); err != nil {
		c.logger.ErrorContext(ctx, "cache write failed", "path", cachePath, "error", err)
	}
	return &Derivative{Path: cachePath, Data: result.Data, ContentType: result.ContentType}, nil
}

// Invalidate deletes every cached derivative of originalPath. Only the key
// folders directly below the cache prefix are listed.
func (c *Cache) Invalidate(ctx context.Context, originalPath string) error {
	listing, err := c.store.List(ctx, storage.ListOptions{Prefix: c.prefix + "/", Folded: true})
	if err != nil {
		return err
	}
	for _, folder := range listing.Folders {
		if err := c.store.Delete(ctx, folder+originalPath); err != nil {
			return err
		}
	}
	return nil
}

// InvalidatePrefix deletes the cached derivatives of every original under prefix
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	listing, err := c.store.List(ctx, storage.ListOptions{Prefix: c.prefix + "/", Folded: true})
	if err != nil {
		return err
	}
	for _, folder := range listing.Folders {
		cached, err := c.store.List(ctx, storage.ListOptions{Prefix: folder + prefix})
		if err != nil {
			return err
		}
		for _, b := range cached.Blobs {
			if err := c.store.Delete(ctx, b.Pathname); err != nil {
				return err
			}
		}
	}
	return nil
}
