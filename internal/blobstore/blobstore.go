package blobstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"payadvice/internal"
	"payadvice/internal/logger"
)

const PDFMimeType = "application/pdf"

// Store is the narrow blob-storage surface used by harvesting and processing.
type Store interface {
	FindFolder(ctx context.Context, name, parentID string) ([]string, error)
	FindByName(ctx context.Context, name, folderID string) ([]string, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, data []byte, name, folderID string) (string, error)
	List(ctx context.Context, folderID string, since time.Time, filter Filter) ([]internal.BlobFile, error)
	Download(ctx context.Context, id string) ([]byte, error)
}

// Filter keeps files whose mime type matches or whose name contains the
// given fragment.
type Filter struct {
	MimeType     string
	NameContains string
}

var PDFFilter = Filter{MimeType: PDFMimeType, NameContains: ".pdf"}

func (f Filter) Matches(file internal.BlobFile) bool {
	if f.MimeType == "" && f.NameContains == "" {
		return true
	}
	if f.MimeType != "" && file.MimeType == f.MimeType {
		return true
	}
	return f.NameContains != "" && strings.Contains(strings.ToLower(file.Name), strings.ToLower(f.NameContains))
}

// EnsureFolder returns the id of the named folder under parentID, creating it
// only when no folder with that name exists yet.
func EnsureFolder(ctx context.Context, s Store, name, parentID string) (string, error) {
	ids, err := s.FindFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("find folder %s: %w", name, err)
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	id, err := s.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("folder", name).Str("id", id).Msg("created folder")
	return id, nil
}

// EnsurePath resolves each folder of path in turn below root.
func EnsurePath(ctx context.Context, s Store, root string, path ...string) (string, error) {
	current := root
	for _, name := range path {
		id, err := EnsureFolder(ctx, s, name, current)
		if err != nil {
			return "", err
		}
		current = id
	}
	return current, nil
}

// UploadOnce stores data under name in folderID unless a file of that name
// is already there. existed reports the second case.
func UploadOnce(ctx context.Context, s Store, data []byte, name, folderID string) (id string, existed bool, err error) {
	log := logger.FromContext(ctx)
	ids, err := s.FindByName(ctx, name, folderID)
	if err != nil {
		return "", false, fmt.Errorf("find %s: %w", name, err)
	}
	if len(ids) > 0 {
		log.Info().Str("file", name).Msg("file already exists, skipping")
		return ids[0], true, nil
	}
	id, err = s.Upload(ctx, data, name, folderID)
	if err != nil {
		return "", false, fmt.Errorf("upload %s: %w", name, err)
	}
	log.Info().Str("file", name).Str("id", id).Msg("uploaded")
	return id, false, nil
}

// StartOfWindow is midnight UTC of the first day of a daysBack window that
// ends today.
func StartOfWindow(now time.Time, daysBack int) time.Time {
	if daysBack < 1 {
		daysBack = 1
	}
	start := now.UTC().AddDate(0, 0, -(daysBack - 1))
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
}
