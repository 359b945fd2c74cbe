// Package storage uploads local image files and returns a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Uploader copies the file at localPath to destPath in public storage and
// returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, localPath, destPath string) (string, error)
}

var ErrInvalidDestination = errors.New("invalid upload destination")

// LocalUploader stores uploads under Dir and serves them from BaseURL.
type LocalUploader struct {
	Dir     string
	BaseURL string
}

// NewLocalUploader creates a LocalUploader.
func NewLocalUploader(dir, baseURL string) *LocalUploader {
	return &LocalUploader{Dir: dir, BaseURL: baseURL}
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	key, err := cleanKey(destPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer func() { _ = src.Close() }()

	target := filepath.Join(u.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return publicURL(u.BaseURL, key), nil
}

// cleanKey normalizes destPath into a relative slash path that cannot
// escape the upload root.
func cleanKey(destPath string) (string, error) {
	key := path.Clean("/" + strings.ReplaceAll(strings.TrimSpace(destPath), "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" || key == "." {
		return "", ErrInvalidDestination
	}
	return key, nil
}

func publicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}
