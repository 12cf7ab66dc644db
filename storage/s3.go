package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"photogallery/errs"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Storage struct {
	Bucket   Bucket
	s3Client *s3.S3
}

func NewS3Storage(bucket *Bucket) (*S3Storage, error) {
	svc, err := bucket.CreateSVC()
	if err != nil {
		return nil, err
	}
	return &S3Storage{
		Bucket:   *bucket,
		s3Client: svc,
	}, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Storage) Put(ctx context.Context, pathname string, data []byte, contentType string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	uploader := s3manager.NewUploaderWithClient(s.s3Client)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      &s.Bucket.Name,
		Key:         aws.String(s.Bucket.GetRemotePath(pathname)),
		ContentType: &contentType,
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return errs.Wrap(errs.KindStorageFailed, "storage write failed", err)
	}
	return nil
}

func (s *S3Storage) Get(ctx context.Context, pathname string) (*Blob, error) {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return nil, err
	}
	resp, err := s.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &s.Bucket.Name,
		Key:    aws.String(s.Bucket.GetRemotePath(pathname)),
	})
	if isS3NotFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	blob := &Blob{
		Pathname:    pathname,
		ContentType: aws.StringValue(resp.ContentType),
		Size:        int64(len(data)),
		UploadedAt:  aws.TimeValue(resp.LastModified),
		Data:        data,
	}
	if blob.ContentType == "" {
		blob.ContentType = DetectContentType(pathname, data)
	}
	return blob, nil
}

func (s *S3Storage) Delete(ctx context.Context, pathname string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.Bucket.Name,
		Key:    aws.String(s.Bucket.GetRemotePath(pathname)),
	})
	if err != nil && !isS3NotFound(err) {
		return errs.Wrap(errs.KindStorageFailed, "storage delete failed", err)
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: &s.Bucket.Name,
		Prefix: aws.String(s.Bucket.GetRemotePath(opts.Prefix)),
	}
	if opts.Folded {
		input.Delimiter = aws.String("/")
	}
	result := ListResult{}
	err := s.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			result.Blobs = append(result.Blobs, Blob{
				Pathname:   s.Bucket.GetLocalPath(aws.StringValue(obj.Key)),
				Size:       aws.Int64Value(obj.Size),
				UploadedAt: aws.TimeValue(obj.LastModified),
			})
		}
		for _, p := range page.CommonPrefixes {
			result.Folders = append(result.Folders, s.Bucket.GetLocalPath(aws.StringValue(p.Prefix)))
		}
		return true
	})
	if err != nil {
		return ListResult{}, errs.Wrap(errs.KindStorageFailed, "storage list failed", err)
	}
	return result, nil
}
