package kvstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/buildbarn/gpucache/pkg/util"
)

// GCS is a key/value backend storing each entry as one object in a
// Google Cloud Storage bucket, following the teacher's
// pkg/blobstore/gcs_blob_access.go shape (a *storage.Client plus a
// bucket name, Get/Put translated through *storage.ObjectHandle).
type GCS struct {
	client      *storage.Client
	bucket      string
	keyPrefix   string
	errorLogger util.ErrorLogger
}

// NewGCS returns a GCS backend writing objects into bucket under
// keyPrefix, using client for all requests.
func NewGCS(client *storage.Client, bucket, keyPrefix string, errorLogger util.ErrorLogger) *GCS {
	return &GCS{client: client, bucket: bucket, keyPrefix: keyPrefix, errorLogger: errorLogger}
}

func (g *GCS) object(key []byte) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.keyPrefix + hex.EncodeToString(key))
}

func (g *GCS) logError(err error) {
	if err != nil && g.errorLogger != nil {
		g.errorLogger.Log(err)
	}
}

// Load implements blobcache.LoadFunc.
func (g *GCS) Load(key []byte, out []byte) int {
	ctx := context.Background()
	r, err := g.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0
	}
	if err != nil {
		g.logError(err)
		return 0
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		g.logError(err)
		return 0
	}
	if out == nil {
		return len(data)
	}
	copy(out, data)
	return len(data)
}

// Store implements blobcache.StoreFunc.
func (g *GCS) Store(key []byte, value []byte) {
	ctx := context.Background()
	w := g.object(key).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(value)); err != nil {
		w.Close()
		g.logError(err)
		return
	}
	g.logError(w.Close())
}
