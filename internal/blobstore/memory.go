package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"payadvice/internal"
)

type memoryEntry struct {
	id       string
	name     string
	parent   string
	folder   bool
	mimeType string
	data     []byte
	created  time.Time
}

// Memory is an in-process Store. Fail, when set, is consulted before every
// mutating or reading call and may inject an error.
type Memory struct {
	Now  func() time.Time
	Fail func(op, name string) error

	mu      sync.Mutex
	seq     int
	entries map[string]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]*memoryEntry{}}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Memory) fail(op, name string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, name)
}

func (m *Memory) find(name, parentID string, folder bool) []string {
	var ids []string
	for _, e := range m.entries {
		if e.name == name && e.parent == parentID && e.folder == folder {
			ids = append(ids, e.id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Memory) add(e *memoryEntry) string {
	m.seq++
	e.id = fmt.Sprintf("blob-%d", m.seq)
	e.created = m.now()
	m.entries[e.id] = e
	return e.id
}

func (m *Memory) FindFolder(_ context.Context, name, parentID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(name, parentID, true), nil
}

func (m *Memory) FindByName(_ context.Context, name, folderID string) ([]string, error) {
	if err := m.fail("find", name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(name, folderID, false), nil
}

func (m *Memory) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	if err := m.fail("mkdir", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(&memoryEntry{name: name, parent: parentID, folder: true}), nil
}

func (m *Memory) Upload(_ context.Context, data []byte, name, folderID string) (string, error) {
	if err := m.fail("upload", name); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mimeType := "application/octet-stream"
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		mimeType = PDFMimeType
	}
	return m.add(&memoryEntry{
		name:     name,
		parent:   folderID,
		mimeType: mimeType,
		data:     append([]byte(nil), data...),
	}), nil
}

func (m *Memory) List(_ context.Context, folderID string, since time.Time, filter Filter) ([]internal.BlobFile, error) {
	if err := m.fail("list", folderID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []internal.BlobFile
	for _, e := range m.entries {
		if e.folder || e.parent != folderID || e.created.Before(since) {
			continue
		}
		file := internal.BlobFile{ID: e.id, Name: e.name, MimeType: e.mimeType, CreatedTime: e.created}
		if filter.Matches(file) {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTime.Equal(out[j].CreatedTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedTime.After(out[j].CreatedTime)
	})
	return out, nil
}

func (m *Memory) Download(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok || e.folder {
		return nil, fmt.Errorf("blob %s not found", id)
	}
	if err := m.fail("download", e.name); err != nil {
		return nil, err
	}
	return append([]byte(nil), e.data...), nil
}

// Files returns the names of all non-folder blobs under folderID.
func (m *Memory) Files(folderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, e := range m.entries {
		if !e.folder && e.parent == folderID {
			names = append(names, e.name)
		}
	}
	sort.Strings(names)
	return names
}
