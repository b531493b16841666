package constants

import "strings"

// Mime types the pipeline dispatches on.
const (
	MimePDF         = "application/pdf"
	MimePlainText   = "text/plain"
	MimeDocx        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeGoogleDoc   = "application/vnd.google-apps.document"
	MimeGoogleSheet = "application/vnd.google-apps.spreadsheet"
	MimeFolder      = "application/vnd.google-apps.folder"

	// GooglePrefix marks platform-proprietary types with no raw byte content.
	GooglePrefix = "application/vnd.google-apps."
)

// NativeDocumentTypes are rich-text documents whose text the storage backend reads directly.
var NativeDocumentTypes = map[string]struct{}{
	MimeGoogleDoc: {},
	MimeDocx:      {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether a document should go through OCR.
func IsPDF(mimeType, name string) bool {
	return mimeType == MimePDF || strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// IsNativeDocument reports whether mimeType is a rich-text document type.
func IsNativeDocument(mimeType string) bool {
	_, ok := NativeDocumentTypes[mimeType]
	return ok
}

// IsProprietary reports whether mimeType is a platform type without a defined text extraction.
func IsProprietary(mimeType string) bool {
	return strings.HasPrefix(mimeType, GooglePrefix) && !IsNativeDocument(mimeType)
}

var extMimeTypes = map[string]string{
	"pdf":  MimePDF,
	"txt":  MimePlainText,
	"csv":  "text/csv",
	"docx": MimeDocx,
	"xlsx": MimeXLSX,
}

// MimeFromExt guesses a mime type from a file extension; unknown extensions are octet-stream.
func MimeFromExt(ext string) string {
	if m, ok := extMimeTypes[NormalizeExt(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}
