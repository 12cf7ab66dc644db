package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"photogallery/errs"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage talks to MinIO or any other S3 compatible service through minio-go
type MinioStorage struct {
	Bucket Bucket
	client *minio.Client
}

// NewMinioStorage connects and makes sure the bucket exists
func NewMinioStorage(bucket *Bucket) (*MinioStorage, error) {
	client, err := minio.New(bucket.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(bucket.Key, bucket.Secret, ""),
		Secure: bucket.UseSSL,
		Region: bucket.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket.Name)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket.Name, minio.MakeBucketOptions{Region: bucket.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStorage{Bucket: *bucket, client: client}, nil
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (m *MinioStorage) Put(ctx context.Context, pathname string, data []byte, contentType string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.Bucket.Name, m.Bucket.GetRemotePath(pathname),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errs.Wrap(errs.KindStorageFailed, "storage write failed", err)
	}
	return nil
}

func (m *MinioStorage) Get(ctx context.Context, pathname string) (*Blob, error) {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.Bucket.Name, m.Bucket.GetRemotePath(pathname), minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	defer obj.Close()
	// GetObject is lazy, errors such as a missing key show up on Stat/Read
	info, err := obj.Stat()
	if isMinioNotFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	blob := &Blob{
		Pathname:    pathname,
		ContentType: info.ContentType,
		Size:        int64(len(data)),
		UploadedAt:  info.LastModified,
		Data:        data,
	}
	if blob.ContentType == "" {
		blob.ContentType = DetectContentType(pathname, data)
	}
	return blob, nil
}

func (m *MinioStorage) Delete(ctx context.Context, pathname string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	err = m.client.RemoveObject(ctx, m.Bucket.Name, m.Bucket.GetRemotePath(pathname), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return errs.Wrap(errs.KindStorageFailed, "storage delete failed", err)
	}
	return nil
}

func (m *MinioStorage) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	result := ListResult{}
	for obj := range m.client.ListObjects(ctx, m.Bucket.Name, minio.ListObjectsOptions{
		Prefix:    m.Bucket.GetRemotePath(opts.Prefix),
		Recursive: !opts.Folded,
	}) {
		if obj.Err != nil {
			return ListResult{}, errs.Wrap(errs.KindStorageFailed, "storage list failed", obj.Err)
		}
		key := m.Bucket.GetLocalPath(obj.Key)
		// Non recursive listings report common prefixes as keys ending in '/'
		if opts.Folded && len(key) > 0 && key[len(key)-1] == '/' {
			result.Folders = append(result.Folders, key)
			continue
		}
		result.Blobs = append(result.Blobs, Blob{
			Pathname:    key,
			ContentType: obj.ContentType,
			Size:        obj.Size,
			UploadedAt:  obj.LastModified,
		})
	}
	return result, nil
}
