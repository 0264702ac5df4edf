package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by DownloadLog when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// S3Client is the abstraction used to archive partition logs to object storage.
type S3Client interface {
	UploadLog(ctx context.Context, key string, body []byte) error
	DownloadLog(ctx context.Context, key string) ([]byte, error)
	ListLogs(ctx context.Context, prefix string) ([]S3Object, error)
	EnsureBucket(ctx context.Context) error
}

// S3Object describes a stored log object.
type S3Object struct {
	Key  string
	Size int64
}

// S3Config describes connection details for AWS S3 or compatible endpoints.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	KMSKeyARN       string
}
