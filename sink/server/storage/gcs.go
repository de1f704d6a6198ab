package storage

import (
	"context"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StorageGCS keeps blobs in a Google Cloud Storage bucket
type StorageGCS struct {
	bucketName string
	prefix     string
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	log        logs.Log
}

// Credentials are found via the usual Application Default Credentials search.
// prefix is prepended to every object name, so that one bucket can serve several sinks.
func NewStorageGCS(ctx context.Context, log logs.Log, bucketName, prefix string) (*StorageGCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &StorageGCS{
		bucketName: bucketName,
		prefix:     prefix,
		client:     client,
		bucket:     client.Bucket(bucketName),
		log:        logs.NewPrefixLogger(log, "StorageGCS"),
	}, nil
}

func (s *StorageGCS) object(name string) *gcs.ObjectHandle {
	return s.bucket.Object(s.prefix + name)
}

func (s *StorageGCS) WriteFile(ctx context.Context, name string) (io.WriteCloser, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	return s.object(name).NewWriter(ctx), nil
}

func (s *StorageGCS) ReadFile(ctx context.Context, name string) (*File, error) {
	r, err := s.object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return &File{
		Reader:     r,
		ModifiedAt: r.Attrs.LastModified,
		Size:       r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(ctx context.Context, name string) error {
	s.log.Infof("Deleting gs://%v/%v%v", s.bucketName, s.prefix, name)
	return s.object(name).Delete(ctx)
}

func (s *StorageGCS) Close() error {
	return s.client.Close()
}
