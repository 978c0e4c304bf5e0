// Package gcs stores blobs as objects in one bucket. Folder ids are object
// prefixes ending in "/"; file ids are full object names.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"payadvice/internal"
	"payadvice/internal/blobstore"
)

type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("missing required env var: GCS_BUCKET")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(bucket)}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) FindFolder(ctx context.Context, name, parentID string) ([]string, error) {
	prefix := folderPath(parentID, name)
	return s.exists(ctx, prefix)
}

func (s *Store) FindByName(ctx context.Context, name, folderID string) ([]string, error) {
	return s.exists(ctx, objectName(folderID, name))
}

func (s *Store) exists(ctx context.Context, object string) ([]string, error) {
	_, err := s.bucket.Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{object}, nil
}

// CreateFolder writes an empty placeholder object for the prefix.
func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	prefix := folderPath(parentID, name)
	if err := s.write(ctx, prefix, nil, "application/x-directory"); err != nil {
		return "", err
	}
	return prefix, nil
}

func (s *Store) Upload(ctx context.Context, data []byte, name, folderID string) (string, error) {
	object := objectName(folderID, name)
	if err := s.write(ctx, object, data, blobstore.PDFMimeType); err != nil {
		return "", err
	}
	return object, nil
}

// write creates object only if it does not exist yet; an existing object
// counts as success.
func (s *Store) write(ctx context.Context, object string, data []byte, contentType string) error {
	w := s.bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if preconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("finalize %s: %w", object, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, folderID string, since time.Time, filter blobstore.Filter) ([]internal.BlobFile, error) {
	prefix := folderPath(folderID, "")
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var out []internal.BlobFile
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if attrs.Prefix != "" || attrs.Name == prefix || attrs.Created.Before(since) {
			continue
		}
		file := internal.BlobFile{
			ID:          attrs.Name,
			Name:        strings.TrimPrefix(attrs.Name, prefix),
			MimeType:    attrs.ContentType,
			CreatedTime: attrs.Created,
		}
		if filter.Matches(file) {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime.After(out[j].CreatedTime) })
	return out, nil
}

func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	r, err := s.bucket.Object(id).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func folderPath(parent, name string) string {
	parent = strings.Trim(parent, "/")
	name = strings.Trim(name, "/")
	switch {
	case parent == "" && name == "":
		return ""
	case parent == "":
		return name + "/"
	case name == "":
		return parent + "/"
	default:
		return parent + "/" + name + "/"
	}
}

func objectName(folderID, name string) string {
	return folderPath(folderID, "") + name
}
