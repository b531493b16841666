// Package storagetest provides an in-memory FileStore with failure injection for tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/storage"
)

// RootID is the id of the pre-created root folder.
const RootID = "root"

type node struct {
	file     storage.File
	parent   string
	content  []byte
	children []string
}

// Memory is a FileStore kept entirely in memory. Children list in creation order.
type Memory struct {
	mu    sync.Mutex
	nodes map[string]*node
	seq   int

	// OCRText and DocText are returned by OCR and DocumentText, keyed by file id.
	OCRText map[string]string
	DocText map[string]string
	// Errors injected per operation, keyed by file id (or folder id for List/CreateFile).
	OCRErr    map[string]error
	DocErr    map[string]error
	ReadErr   map[string]error
	DeleteErr map[string]error
	ListErr   map[string]error
	// CreateErr fails CreateFile and CreateFolder for a given new name.
	CreateErr map[string]error

	Deleted []string
}

var _ storage.FileStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nodes: map[string]*node{
			RootID: {file: storage.File{ID: RootID, Name: "root", MimeType: constants.MimeFolder, IsFolder: true}},
		},
		OCRText:   map[string]string{},
		DocText:   map[string]string{},
		OCRErr:    map[string]error{},
		DocErr:    map[string]error{},
		ReadErr:   map[string]error{},
		DeleteErr: map[string]error{},
		ListErr:   map[string]error{},
		CreateErr: map[string]error{},
	}
}

// AddFile seeds a document under parentID.
func (m *Memory) AddFile(parentID, name, mimeType string, content []byte) storage.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(parentID, storage.File{Name: name, MimeType: mimeType}, content)
}

// AddFolder seeds a folder under parentID.
func (m *Memory) AddFolder(parentID, name string) storage.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(parentID, storage.File{Name: name, MimeType: constants.MimeFolder, IsFolder: true}, nil)
}

// Children returns the direct children of folderID.
func (m *Memory) Children(folderID string) []storage.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[folderID]
	if !ok {
		return nil
	}
	out := make([]storage.File, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, m.nodes[id].file)
	}
	return out
}

// Content returns the stored bytes of id.
func (m *Memory) Content(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, false
	}
	return n.content, true
}

// SetContent replaces the bytes of an existing file.
func (m *Memory) SetContent(id string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	n.content = append([]byte(nil), content...)
	return nil
}

func (m *Memory) List(_ context.Context, folderID string) ([]storage.File, error) {
	if err := m.ListErr[folderID]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	n, ok := m.nodes[folderID]
	m.mu.Unlock()
	if !ok || !n.file.IsFolder {
		return nil, fmt.Errorf("%w: folder %s", common.ErrNotFound, folderID)
	}
	return m.Children(folderID), nil
}

func (m *Memory) Read(_ context.Context, id string) ([]byte, error) {
	if err := m.ReadErr[id]; err != nil {
		return nil, err
	}
	b, ok := m.Content(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return b, nil
}

func (m *Memory) CreateFile(_ context.Context, folderID, name, mimeType string, content []byte) (storage.File, error) {
	if err := m.CreateErr[name]; err != nil {
		return storage.File{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[folderID]; !ok {
		return storage.File{}, fmt.Errorf("%w: folder %s", common.ErrNotFound, folderID)
	}
	return m.add(folderID, storage.File{Name: name, MimeType: mimeType}, append([]byte(nil), content...)), nil
}

func (m *Memory) CreateFolder(_ context.Context, parentID, name string) (storage.File, error) {
	if err := m.CreateErr[name]; err != nil {
		return storage.File{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[parentID]; !ok {
		return storage.File{}, fmt.Errorf("%w: folder %s", common.ErrNotFound, parentID)
	}
	return m.add(parentID, storage.File{Name: name, MimeType: constants.MimeFolder, IsFolder: true}, nil), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	if err := m.DeleteErr[id]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	if p, ok := m.nodes[n.parent]; ok {
		for i, c := range p.children {
			if c == id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	delete(m.nodes, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

func (m *Memory) OCR(_ context.Context, f storage.File) (string, error) {
	if err := m.OCRErr[f.ID]; err != nil {
		return "", err
	}
	return m.OCRText[f.ID], nil
}

func (m *Memory) DocumentText(_ context.Context, f storage.File) (string, error) {
	if err := m.DocErr[f.ID]; err != nil {
		return "", err
	}
	return m.DocText[f.ID], nil
}

func (m *Memory) Link(id string) string { return "mem://" + id }

func (m *Memory) add(parentID string, f storage.File, content []byte) storage.File {
	m.seq++
	f.ID = fmt.Sprintf("id-%d", m.seq)
	m.nodes[f.ID] = &node{file: f, parent: parentID, content: content}
	if p, ok := m.nodes[parentID]; ok {
		p.children = append(p.children, f.ID)
	}
	return f
}
