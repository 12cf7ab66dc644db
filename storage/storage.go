package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"photogallery/errs"
)

// ErrNotFound is returned by Get when no object is stored under the path
var ErrNotFound = errs.New(errs.KindNotFound, "object not found")

type Blob struct {
	Pathname    string    `json:"pathname"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Data        []byte    `json:"-"` // only filled by Get
}

type ListOptions struct {
	Prefix string
	// Folded groups keys by the next path segment after Prefix,
	// returning those groups as Folders instead of their blobs
	Folded bool
}

type ListResult struct {
	Blobs   []Blob
	Folders []string
}

// BlobStore is a flat key/value object store with '/' as a conventional separator
type BlobStore interface {
	Put(ctx context.Context, pathname string, data []byte, contentType string) error
	Get(ctx context.Context, pathname string) (*Blob, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, pathname string) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// NewStorage creates the backend described by the bucket
func NewStorage(bucket *Bucket) (BlobStore, error) {
	switch bucket.StorageType {
	case StorageTypeFile:
		return NewDiskStorage(bucket)
	case StorageTypeS3:
		return NewS3Storage(bucket)
	case StorageTypeMinio:
		return NewMinioStorage(bucket)
	}
	return nil, fmt.Errorf("storage type %d unavailable for bucket %s", bucket.StorageType, bucket.Name)
}

// CleanPath validates an object key: relative, no empty, "." or ".." segments
func CleanPath(pathname string) (string, error) {
	if pathname == "" || strings.HasPrefix(pathname, "/") || strings.Contains(pathname, "\\") {
		return "", errs.New(errs.KindValidation, "invalid object path")
	}
	for _, segment := range strings.Split(pathname, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", errs.New(errs.KindValidation, "invalid object path")
		}
	}
	return pathname, nil
}

// DetectContentType sniffs data, falling back to the key's extension
func DetectContentType(pathname string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	switch strings.ToLower(path.Ext(pathname)) {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".avif":
		return "image/avif"
	case ".heic":
		return "image/heic"
	}
	return sniffed
}
