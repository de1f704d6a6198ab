package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrInvalidName = errors.New("Invalid blob name")

// Storage is a blob store for alert snapshots and clips
type Storage interface {
	// When finished, you must close the WriteCloser
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// WriteFile copies content into a new blob
func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) (int64, error) {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, content)
	errClose := f.Close()
	if err != nil {
		return n, err
	}
	return n, errClose
}

func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
