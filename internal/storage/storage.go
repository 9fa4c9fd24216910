package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Uploader stores a blob and returns a durable URL for it.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (url string, err error)
}

// Object is a blob held by MemoryUploader.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryUploader keeps blobs in process memory.
type MemoryUploader struct {
	mu      sync.Mutex
	objects map[string]Object
	// Err, when set, fails every upload.
	Err error
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{objects: map[string]Object{}}
}

func (u *MemoryUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	if u.Err != nil {
		return "", u.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[objectName] = Object{ContentType: contentType, Data: data}
	return "memory://" + objectName, nil
}

func (u *MemoryUploader) Get(objectName string) (Object, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	o, ok := u.objects[objectName]
	return o, ok
}

func (u *MemoryUploader) Names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.objects))
	for k := range u.objects {
		out = append(out, k)
	}
	return out
}

// DirUploader writes blobs under a local directory.
type DirUploader struct {
	Root string
}

func (u DirUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	dst := filepath.Join(u.Root, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("file://%s", filepath.ToSlash(abs)), nil
}
