package constants

// RunMode controls whether a run commits its processed set.
type RunMode string

const (
	RunModeNormal RunMode = ""
	RunModeTest   RunMode = "test" // dry run: documents are never marked known
)

// ParseRunMode maps the stored RunMode property onto a RunMode. Anything other than "test" is a normal run.
func ParseRunMode(v string) RunMode {
	if RunMode(v) == RunModeTest {
		return RunModeTest
	}
	return RunModeNormal
}

// DocumentStatus is the per-document outcome of a run.
type DocumentStatus string

// Stable values (these appear in logs).
const (
	DocumentProcessed DocumentStatus = "PROCESSED" // full pipeline completed
	DocumentSkipped   DocumentStatus = "SKIPPED"   // no text extracted
	DocumentFailed    DocumentStatus = "FAILED"    // a stage returned an error
)
