package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFallsBackToNotImplemented(t *testing.T) {
	r := NewRegistry()
	r.Register("loc", NewLoc())

	d := r.New("ftp")
	_, err := d.Transfer(context.Background(), Request{})
	require.True(t, errors.Is(err, ErrNotImplemented))
	require.Equal(t, "ftp", d.Protocol())
	require.NoError(t, d.Close())
}

func TestLocDriverCopiesFiles(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	r := NewRegistry()
	r.Register("loc", NewLoc())
	d := r.New("loc")
	defer d.Close()

	result, err := d.Transfer(context.Background(), Request{
		Recipient: "loc://" + dstDir,
		Files:     []string{srcFile},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.FilesDone)
	require.Equal(t, int64(5), result.BytesDone)

	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestLocDriverRespectsCancellation(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte("hello"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewLoc()()
	_, err := d.Transfer(ctx, Request{Recipient: "loc://" + dstDir, Files: []string{srcFile}})
	require.ErrorIs(t, err, context.Canceled)
}
