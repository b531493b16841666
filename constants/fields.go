package constants

// Field names mined from every document.
const (
	FieldSum  = "sum"
	FieldNum  = "num"
	FieldDate = "date"
)

// NotAvailable is stored for a field whose pattern found no match.
const NotAvailable = "N/A"

// Extraction Log layout.
const LogTableName = "Extraction Log"

var LogHeader = []string{
	"File Name",
	"Original PDF link",
	"Text file link",
	"Extracted text",
	"Sum",
	"Num",
	"Date",
}

// Property keys in the key-value store.
const (
	PropInputFolderID    = "InputFolderId"
	PropOutputFolderName = "OutputFolderName"
	PropRunMode          = "RunMode"
	PropKnownFileIDs     = "knownFileIDs"
)

// ArtifactExt is appended to the original document name to form the artifact name.
const ArtifactExt = ".txt"
