// Package localfs is a FileStore over a directory tree. Folder and file ids are
// slash-separated paths relative to the store root; "." is the root itself.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/ocr"
	"github.com/springcomet/kabalot/internal/storage"
)

// PDFEngine recognizes the text of a PDF on disk.
type PDFEngine interface {
	ExtractPDF(ctx context.Context, path string) (ocr.Result, error)
}

type Store struct {
	root   string
	engine PDFEngine
	logger *slog.Logger
}

var _ storage.FileStore = (*Store)(nil)

// New opens a store rooted at root, which must be an existing directory.
func New(root string, engine PDFEngine, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, common.NewAppError(common.CodeConfig, "local root is required", common.ErrConfig)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	return &Store{root: abs, engine: engine, logger: logger}, nil
}

// Root is the absolute directory backing the store.
func (s *Store) Root() string { return s.root }

// Path resolves id to an absolute path inside the root.
func (s *Store) Path(id string) (string, error) {
	id = filepath.ToSlash(strings.TrimSpace(id))
	if id == "" {
		id = "."
	}
	clean := path.Clean(id)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: id %q escapes the root", common.ErrInvalidInput, id)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// ID maps an absolute path inside the root back to its id.
func (s *Store) ID(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s is outside the root", common.ErrInvalidInput, abs)
	}
	return rel, nil
}

func (s *Store) List(ctx context.Context, folderID string) ([]storage.File, error) {
	dir, err := s.Path(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s", common.ErrNotFound, folderID)
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	out := make([]storage.File, 0, len(entries))
	for _, e := range entries {
		if IsHidden(e.Name()) {
			continue
		}
		f := storage.File{
			ID:   childID(folderID, e.Name()),
			Name: e.Name(),
		}
		if e.IsDir() {
			f.IsFolder = true
			f.MimeType = constants.MimeFolder
		} else {
			f.MimeType = constants.MimeFromExt(filepath.Ext(e.Name()))
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	p, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
		}
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	return b, nil
}

// CreateFile writes a new file. A name that is already taken gets a " (n)" suffix
// before the extension, so nothing is ever overwritten.
func (s *Store) CreateFile(ctx context.Context, folderID, name, mimeType string, content []byte) (storage.File, error) {
	dir, err := s.Path(folderID)
	if err != nil {
		return storage.File{}, err
	}
	if err := validName(name); err != nil {
		return storage.File{}, err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
			continue
		}
		if err != nil {
			return storage.File{}, fmt.Errorf("create %s: %w", candidate, err)
		}
		_, werr := f.Write(content)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(f.Name())
			return storage.File{}, fmt.Errorf("write %s: %w", candidate, errors.Join(werr, cerr))
		}
		if mimeType == "" {
			mimeType = constants.MimeFromExt(ext)
		}
		return storage.File{ID: childID(folderID, candidate), Name: candidate, MimeType: mimeType}, nil
	}
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (storage.File, error) {
	dir, err := s.Path(parentID)
	if err != nil {
		return storage.File{}, err
	}
	if err := validName(name); err != nil {
		return storage.File{}, err
	}
	if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
		return storage.File{}, fmt.Errorf("mkdir %s: %w", name, err)
	}
	return storage.File{
		ID:       childID(parentID, name),
		Name:     name,
		MimeType: constants.MimeFolder,
		IsFolder: true,
	}, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	p, err := s.Path(id)
	if err != nil {
		return err
	}
	if p == s.root {
		return fmt.Errorf("%w: refusing to delete the root", common.ErrInvalidInput)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// OCR runs the local PDF engine. Its rendered pages live in a temp dir the engine removes.
func (s *Store) OCR(ctx context.Context, f storage.File) (string, error) {
	if s.engine == nil {
		return "", common.NewAppError(common.CodeOCR, "no ocr engine configured", common.ErrUnsupported)
	}
	p, err := s.Path(f.ID)
	if err != nil {
		return "", err
	}
	res, err := s.engine.ExtractPDF(ctx, p)
	if err != nil {
		return "", common.NewAppError(common.CodeOCR, "ocr "+f.Name, err)
	}
	for _, w := range res.Warnings {
		s.logger.Warn("ocr warning", "file_id", f.ID, "name", f.Name, "warning", w)
	}
	s.logger.Debug("ocr done", "file_id", f.ID, "method", res.Method, "pages", res.Pages, "duration", res.Duration)
	return res.Text, nil
}

// DocumentText reads the body text of a .docx document.
func (s *Store) DocumentText(ctx context.Context, f storage.File) (string, error) {
	if f.MimeType != constants.MimeDocx {
		return "", fmt.Errorf("%w: %s", common.ErrUnsupported, f.MimeType)
	}
	b, err := s.Read(ctx, f.ID)
	if err != nil {
		return "", err
	}
	return docxText(b)
}

func (s *Store) Link(id string) string {
	p, err := s.Path(id)
	if err != nil {
		return ""
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// IsHidden reports whether a base name is a dotfile.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func childID(parentID, name string) string {
	if parentID == "" || parentID == "." {
		return name
	}
	return path.Join(parentID, name)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: bad name %q", common.ErrInvalidInput, name)
	}
	return nil
}
