package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorageFS(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)

	n, err := WriteFile(ctx, s, "alerts/1/snapshot.jpg", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	b, err := ReadFile(ctx, s, "alerts/1/snapshot.jpg")
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	f, err := s.ReadFile(ctx, "alerts/1/snapshot.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(5), f.Size)
	f.Reader.Close()

	require.NoError(t, s.DeleteFile(ctx, "alerts/1/snapshot.jpg"))
	_, err = s.ReadFile(ctx, "alerts/1/snapshot.jpg")
	require.True(t, errors.Is(err, os.ErrNotExist))

	_, err = s.WriteFile(ctx, "../escape")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.ReadFile(ctx, "/etc/passwd")
	require.ErrorIs(t, err, ErrInvalidName)
}
