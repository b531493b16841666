// Package storage defines the hierarchical file store the pipeline reads documents from
// and writes artifacts to.
package storage

import (
	"context"
	"fmt"
)

// File is a document or folder handle owned by the backend.
type File struct {
	ID       string
	Name     string
	MimeType string
	IsFolder bool
}

// FileStore is the hierarchical file storage service.
type FileStore interface {
	// List returns the direct children of folderID in backend order.
	List(ctx context.Context, folderID string) ([]File, error)
	// Read returns the raw bytes of a file.
	Read(ctx context.Context, id string) ([]byte, error)
	// CreateFile creates a new file; an existing file with the same name is never overwritten.
	CreateFile(ctx context.Context, folderID, name, mimeType string, content []byte) (File, error)
	// CreateFolder creates a subfolder of parentID.
	CreateFolder(ctx context.Context, parentID, name string) (File, error)
	// Delete removes a file.
	Delete(ctx context.Context, id string) error
	// OCR converts a scanned document to text in the backend's fixed recognition language.
	// Any temporary converted representation is removed before returning.
	OCR(ctx context.Context, f File) (string, error)
	// DocumentText reads the text of a native rich-text document.
	DocumentText(ctx context.Context, f File) (string, error)
	// Link returns a stable, directly dereferenceable reference to id.
	Link(id string) string
}

// FindOrCreateFolder returns the child folder of parentID named exactly name
// (case-sensitive), creating it when absent. created reports which path was taken.
func FindOrCreateFolder(ctx context.Context, fs FileStore, parentID, name string) (folder File, created bool, err error) {
	children, err := fs.List(ctx, parentID)
	if err != nil {
		return File{}, false, fmt.Errorf("list %s: %w", parentID, err)
	}
	return EnsureFolder(ctx, fs, parentID, name, children)
}

// EnsureFolder is FindOrCreateFolder over an already fetched listing of parentID.
func EnsureFolder(ctx context.Context, fs FileStore, parentID, name string, children []File) (folder File, created bool, err error) {
	if f, ok := FindFolder(children, name); ok {
		return f, false, nil
	}
	f, err := fs.CreateFolder(ctx, parentID, name)
	if err != nil {
		return File{}, false, fmt.Errorf("create folder %q: %w", name, err)
	}
	return f, true, nil
}

// FindFolder returns the first folder in children named exactly name.
func FindFolder(children []File, name string) (File, bool) {
	for _, c := range children {
		if c.IsFolder && c.Name == name {
			return c, true
		}
	}
	return File{}, false
}

// Documents filters out folders, leaving the listing order intact.
func Documents(children []File) []File {
	out := make([]File, 0, len(children))
	for _, c := range children {
		if !c.IsFolder {
			out = append(out, c)
		}
	}
	return out
}
