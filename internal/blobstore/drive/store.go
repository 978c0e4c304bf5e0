package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"payadvice/internal"
	"payadvice/internal/blobstore"
)

const folderMimeType = "application/vnd.google-apps.folder"

type Store struct {
	service *drive.Service
}

func NewStore(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Store{service: svc}, nil
}

func (s *Store) FindFolder(ctx context.Context, name, parentID string) ([]string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escape(name), folderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escape(parentID))
	}
	return s.ids(ctx, q)
}

func (s *Store) FindByName(ctx context.Context, name, folderID string) ([]string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escape(name), escape(folderID))
	return s.ids(ctx, q)
}

func (s *Store) ids(ctx context.Context, q string) ([]string, error) {
	resp, err := s.service.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		ids = append(ids, f.Id)
	}
	return ids, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := s.service.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (s *Store) Upload(ctx context.Context, data []byte, name, folderID string) (string, error) {
	meta := &drive.File{Name: name, Parents: []string{folderID}}
	created, err := s.service.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(blobstore.PDFMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (s *Store) List(ctx context.Context, folderID string, since time.Time, filter blobstore.Filter) ([]internal.BlobFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false and createdTime >= '%s'",
		escape(folderID), since.UTC().Format("2006-01-02T15:04:05Z"))
	if clause := filterClause(filter); clause != "" {
		q += " and " + clause
	}

	var out []internal.BlobFile
	pageToken := ""
	for {
		call := s.service.Files.List().
			Q(q).
			Fields("nextPageToken, files(id, name, mimeType, createdTime)").
			OrderBy("createdTime desc").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, f := range resp.Files {
			created, _ := time.Parse(time.RFC3339, f.CreatedTime)
			out = append(out, internal.BlobFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType, CreatedTime: created})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func filterClause(f blobstore.Filter) string {
	var parts []string
	if f.MimeType != "" {
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", escape(f.MimeType)))
	}
	if f.NameContains != "" {
		parts = append(parts, fmt.Sprintf("name contains '%s'", escape(f.NameContains)))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " or ") + ")"
	}
}

// escape quotes a value for a Drive query string literal.
func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
