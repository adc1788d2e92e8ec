package driver

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// LocDriver implements the "loc" protocol: a same-host copy from the
// outgoing sub-directory into the directory named by the recipient
// URL's path, fsync'd the way backend/local's atomic-replace path
// does.
type LocDriver struct{}

// NewLoc returns a LocDriver factory suitable for Registry.Register.
func NewLoc() Factory {
	return func() Driver { return &LocDriver{} }
}

func (d *LocDriver) Protocol() string { return "loc" }

func (d *LocDriver) Close() error { return nil }

func (d *LocDriver) Transfer(ctx context.Context, req Request) (Result, error) {
	destDir, err := locDestDir(req.Recipient)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("driver/loc: mkdir %s: %w", destDir, err)
	}

	var result Result
	for _, src := range req.Files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		n, err := copyFile(src, filepath.Join(destDir, filepath.Base(src)))
		if err != nil {
			return result, fmt.Errorf("driver/loc: copy %s: %w", src, err)
		}
		result.FilesDone++
		result.BytesDone += n
	}
	return result, nil
}

func locDestDir(recipient string) (string, error) {
	u, err := url.Parse(recipient)
	if err != nil {
		return "", fmt.Errorf("driver/loc: parse recipient %q: %w", recipient, err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("driver/loc: recipient %q has no path", recipient)
	}
	return u.Path, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, in)
	if copyErr != nil {
		out.Close()
		os.Remove(dst)
		return 0, copyErr
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}
