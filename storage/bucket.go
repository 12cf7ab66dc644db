package storage

import (
	"photogallery/config"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type StorageType uint8

const (
	StorageTypeFile  StorageType = 0
	StorageTypeS3    StorageType = 1
	StorageTypeMinio StorageType = 2
)

// Bucket describes where blobs live
type Bucket struct {
	Name        string // bucket name for S3/MinIO
	StorageType StorageType
	Path        string // Path on a drive or a prefix in a S3 bucket
	Region      string
	Endpoint    string // custom S3 endpoint or MinIO host:port
	Key         string
	Secret      string
	UseSSL      bool
}

func BucketFromConfig(cfg config.Config) *Bucket {
	b := &Bucket{
		Name:     cfg.StorageBucket,
		Path:     cfg.StoragePath,
		Region:   cfg.StorageRegion,
		Endpoint: cfg.StorageEndpoint,
		Key:      cfg.StorageKey,
		Secret:   cfg.StorageSecret,
		UseSSL:   cfg.StorageUseSSL,
	}
	switch cfg.StorageType {
	case "s3":
		b.StorageType = StorageTypeS3
	case "minio":
		b.StorageType = StorageTypeMinio
	default:
		b.StorageType = StorageTypeFile
	}
	return b
}

// GetRemotePath prefixes a key with the bucket path, if any
func (b *Bucket) GetRemotePath(pathname string) string {
	prefix := strings.Trim(b.Path, "/")
	if prefix == "" {
		return pathname
	}
	return prefix + "/" + pathname
}

// GetLocalPath strips the bucket path from a remote key
func (b *Bucket) GetLocalPath(remote string) string {
	prefix := strings.Trim(b.Path, "/")
	if prefix == "" {
		return remote
	}
	return strings.TrimPrefix(remote, prefix+"/")
}

func (b *Bucket) CreateSVC() (*s3.S3, error) {
	cfg := aws.NewConfig().WithRegion(b.Region)
	if b.Key != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(b.Key, b.Secret, ""))
	}
	if b.Endpoint != "" {
		cfg = cfg.WithEndpoint(b.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}
