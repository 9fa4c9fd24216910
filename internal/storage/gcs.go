package storage

import (
	"context"
	"io"
	"net/url"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/yoockh/livevoice/internal/utils"
)

// GCSUploader writes audios/* and images/* objects to one bucket.
type GCSUploader struct {
	client *gcs.Client
	bucket string
	// Public grants allUsers read. Buckets with uniform access reject object ACLs.
	Public bool
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, utils.E(utils.CodeInvalidArgument, "NewGCSUploader", "bucket is required", nil)
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeConnection, "NewGCSUploader", "storage client", err)
	}
	return &GCSUploader{client: c, bucket: bucket, Public: true}, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

func (u *GCSUploader) Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (string, error) {
	const op = "GCSUploader.Upload"
	name := path.Clean(objectName)
	if name == "." || name == "/" {
		return "", utils.E(utils.CodeInvalidArgument, op, "object name is required", nil)
	}

	// canceling ctx makes the writer discard a partial object
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj := u.client.Bucket(u.bucket).Object(name)
	w := obj.NewWriter(wctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", utils.E(utils.CodeTransport, op, "write "+name, err)
	}
	if err := w.Close(); err != nil {
		return "", utils.E(utils.CodeTransport, op, "commit "+name, err)
	}

	if u.Public {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			return "", utils.E(utils.CodePermissionDenied, op, "make "+name+" public", err)
		}
	}

	return (&url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + u.bucket + "/" + name}).String(), nil
}
