// Package gdrive is a FileStore backed by Google Drive v3. Every call waits on a
// shared rate limiter and is retried with exponential backoff on 429 and 5xx.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
	"github.com/springcomet/kabalot/internal/storage"
)

const listFields = "nextPageToken, files(id, name, mimeType, appProperties)"

// Temporary conversion copies carry this app property so a copy left behind by a
// failed delete is never listed as a document.
const (
	tempPropKey   = "kabalotTemp"
	tempPropValue = "conversion"
)

type Config struct {
	RequestsPerSecond float64 // <= 0 disables pacing
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	OCRLanguage       string // default "he"
}

type Store struct {
	svc     *drive.Service
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ storage.FileStore = (*Store)(nil)

// New builds a Drive client from opts (credentials file, endpoint, http client).
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, common.NewAppError(common.CodeStorage, "create drive client", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

func NewWithService(svc *drive.Service, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = "he"
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Store{
		svc:     svc,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Service exposes the underlying client so sibling adapters share its transport.
func (s *Store) Service() *drive.Service { return s.svc }

func (s *Store) List(ctx context.Context, folderID string) ([]storage.File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	var out []storage.File
	pageToken := ""
	for {
		var page *drive.FileList
		err := s.Call(ctx, "files.list", func() error {
			call := s.svc.Files.List().
				Q(q).
				Fields(listFields).
				PageSize(1000).
				SupportsAllDrives(true).
				IncludeItemsFromAllDrives(true).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			page, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", folderID, err)
		}
		for _, f := range page.Files {
			if isTempCopy(f) {
				s.logger.Warn("skipping leftover conversion copy", "file_id", f.Id, "name", f.Name)
				continue
			}
			out = append(out, toFile(f))
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	var b []byte
	err := s.Call(ctx, "files.get", func() error {
		resp, err := s.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return err
		}
		b, err = readBody(resp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return b, nil
}

// CreateFile uploads content. A nil content with a Google mime type creates an empty native file.
func (s *Store) CreateFile(ctx context.Context, folderID, name, mimeType string, content []byte) (storage.File, error) {
	meta := &drive.File{Name: name, MimeType: mimeType, Parents: []string{folderID}}
	var created *drive.File
	err := s.CallWrite(ctx, "files.create", func() error {
		call := s.svc.Files.Create(meta).Fields("id, name, mimeType").SupportsAllDrives(true).Context(ctx)
		if content != nil {
			call = call.Media(bytes.NewReader(content), googleapi.ContentType(mimeType))
		}
		var err error
		created, err = call.Do()
		return err
	})
	if err != nil {
		return storage.File{}, fmt.Errorf("create %q: %w", name, err)
	}
	return toFile(created), nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (storage.File, error) {
	meta := &drive.File{Name: name, MimeType: constants.MimeFolder, Parents: []string{parentID}}
	var created *drive.File
	err := s.CallWrite(ctx, "files.create", func() error {
		var err error
		created, err = s.svc.Files.Create(meta).Fields("id, name, mimeType").SupportsAllDrives(true).Context(ctx).Do()
		return err
	})
	if err != nil {
		return storage.File{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	return toFile(created), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.Call(ctx, "files.delete", func() error {
		return s.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// OCR copies f as a Google Doc with OCR in the configured language, exports the copy
// as plain text and deletes the copy.
func (s *Store) OCR(ctx context.Context, f storage.File) (string, error) {
	txt, err := s.convertAndExport(ctx, f, s.cfg.OCRLanguage)
	if err != nil {
		return "", common.NewAppError(common.CodeOCR, "ocr "+f.Name, err)
	}
	return txt, nil
}

// DocumentText exports a Google Doc directly; uploaded .docx files are converted through a temporary copy.
func (s *Store) DocumentText(ctx context.Context, f storage.File) (string, error) {
	switch f.MimeType {
	case constants.MimeGoogleDoc:
		return s.export(ctx, f.ID)
	case constants.MimeDocx:
		return s.convertAndExport(ctx, f, "")
	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupported, f.MimeType)
	}
}

func (s *Store) Link(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view?usp=sharing"
}

func (s *Store) convertAndExport(ctx context.Context, f storage.File, ocrLang string) (string, error) {
	meta := &drive.File{
		Name:          f.Name + " (converted)",
		MimeType:      constants.MimeGoogleDoc,
		AppProperties: map[string]string{tempPropKey: tempPropValue},
	}
	var tmp *drive.File
	err := s.CallWrite(ctx, "files.copy", func() error {
		call := s.svc.Files.Copy(f.ID, meta).Fields("id").SupportsAllDrives(true).Context(ctx)
		if ocrLang != "" {
			call = call.OcrLanguage(ocrLang)
		}
		var err error
		tmp, err = call.Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", f.ID, err)
	}
	defer func() {
		// the caller's ctx may already be cancelled; the temp copy still has to go
		if err := s.Delete(context.WithoutCancel(ctx), tmp.Id); err != nil {
			s.logger.Error("failed to delete converted copy", "file_id", f.ID, "copy_id", tmp.Id, "error", err)
		}
	}()
	return s.export(ctx, tmp.Id)
}

func (s *Store) export(ctx context.Context, id string) (string, error) {
	var b []byte
	err := s.Call(ctx, "files.export", func() error {
		resp, err := s.svc.Files.Export(id, constants.MimePlainText).Context(ctx).Download()
		if err != nil {
			return err
		}
		b, err = readBody(resp)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", id, err)
	}
	return string(b), nil
}

// Call paces fn on the shared limiter and retries it while the error is retryable.
// Sibling Google API adapters use it so every request shares one budget.
func (s *Store) Call(ctx context.Context, op string, fn func() error) error {
	return s.call(ctx, op, Retryable, fn)
}

// CallWrite is Call for requests that are not idempotent (create, copy, append).
// They are retried only when the server rejected them before doing any work.
func (s *Store) CallWrite(ctx context.Context, op string, fn func() error) error {
	return s.call(ctx, op, RetryableWrite, fn)
}

func (s *Store) call(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			return werr
		}
		err = fn()
		if err == nil || !retryable(err) || attempt >= s.cfg.MaxRetries {
			return err
		}
		delay := s.cfg.RetryBaseDelay << attempt
		s.logger.Warn("drive call failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// Retryable reports whether err is a rate-limit or server-side Drive error.
func Retryable(err error) bool {
	code, ok := apiCode(err)
	return ok && (code == http.StatusTooManyRequests || code >= 500)
}

// RetryableWrite reports whether a write failed without taking effect: 429 and 503
// are returned before the request is processed, any other 5xx may follow a
// write that already landed.
func RetryableWrite(err error) bool {
	code, ok := apiCode(err)
	return ok && (code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable)
}

func apiCode(err error) (int, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0, false
	}
	return gerr.Code, true
}

func isTempCopy(f *drive.File) bool {
	return f.AppProperties[tempPropKey] == tempPropValue
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func toFile(f *drive.File) storage.File {
	return storage.File{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		IsFolder: f.MimeType == constants.MimeFolder,
	}
}

func escapeQuery(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
