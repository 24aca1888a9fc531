package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures the Cloud Storage backend.
type GCSConfig struct {
	Bucket string

	// Prefix is prepended to every object name.
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string

	// Endpoint overrides the storage API endpoint, e.g. for an emulator.
	Endpoint string
}

// GCSBackend stores each entry as the object <prefix><key>.json.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSBackend creates a storage client for cfg.Bucket.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, newStorageError("gcs", "config", errors.New("bucket is required"))
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, newStorageError("gcs", "client", err)
	}
	return &GCSBackend{client: client, bucket: client.Bucket(cfg.Bucket), prefix: cfg.Prefix}, nil
}

func objectName(prefix, key string) string {
	return prefix + key + ".json"
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func (g *GCSBackend) write(ctx context.Context, obj *storage.ObjectHandle, entry *Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	w.Metadata = map[string]string{"version": entry.Version, "status": string(entry.Status)}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// CreateIfAbsent writes the object with a DoesNotExist precondition. A 412
// means another writer created it first.
func (g *GCSBackend) CreateIfAbsent(ctx context.Context, entry *Entry) (bool, *Entry, error) {
	obj := g.bucket.Object(objectName(g.prefix, entry.Key)).If(storage.Conditions{DoesNotExist: true})
	err := g.write(ctx, obj, entry)
	if err == nil {
		return true, nil, nil
	}
	if !isPreconditionFailed(err) {
		return false, nil, newStorageError("gcs", "create", err)
	}
	existing, err := g.Get(ctx, entry.Key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (g *GCSBackend) Put(ctx context.Context, entry *Entry) error {
	if err := g.write(ctx, g.bucket.Object(objectName(g.prefix, entry.Key)), entry); err != nil {
		return newStorageError("gcs", "put", err)
	}
	return nil
}

func (g *GCSBackend) Get(ctx context.Context, key string) (*Entry, error) {
	r, err := g.bucket.Object(objectName(g.prefix, key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("gcs", "get", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newStorageError("gcs", "read", err)
	}
	e, err := decode(data)
	if err != nil {
		return nil, newStorageError("gcs", "decode", err)
	}
	return e, nil
}

func (g *GCSBackend) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(objectName(g.prefix, key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return newStorageError("gcs", "delete", err)
	}
	return nil
}

// Prune lists the prefix and deletes objects whose version metadata differs
// from keep.
func (g *GCSBackend) Prune(ctx context.Context, keep string) (int, error) {
	deleted := 0
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, newStorageError("gcs", "list", err)
		}
		if !strings.HasSuffix(attrs.Name, ".json") || attrs.Metadata["version"] == keep {
			continue
		}
		err = g.bucket.Object(attrs.Name).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return deleted, newStorageError("gcs", "delete", err)
		}
		deleted++
	}
	return deleted, nil
}

func (g *GCSBackend) Close() error {
	return g.client.Close()
}
