package models

// ImportMethod is the wire name of an image matching strategy.
type ImportMethod string

const (
	ImportMethodAuto     ImportMethod = "auto"
	ImportMethodRowOrder ImportMethod = "row-order"
	ImportMethodFilename ImportMethod = "filename"
	ImportMethodImages   ImportMethod = "images-only"
)

// ImportStatus is the terminal state of an import run.
type ImportStatus string

const (
	ImportStatusDone   ImportStatus = "done"
	ImportStatusFailed ImportStatus = "failed"
)

// ImportRow is one data row of an imported spreadsheet.
// Index is the 0-based ordinal used by row-order matching; Line is the 1-based
// line (CSV) or sheet row (XLSX) the row was read from.
type ImportRow struct {
	Index  int               `json:"index"`
	Line   int               `json:"line"`
	Fields map[string]string `json:"fields"`
	Images []string          `json:"images,omitempty"`
}

// Field returns the value for a normalized (lowercase) header, or "".
func (r ImportRow) Field(name string) string {
	return r.Fields[name]
}

// ImageFile is an image selected by the operator for upload.
type ImageFile struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// RowError describes why a single spreadsheet row was not created.
// Row is 1-based as seen by the operator (header is row 1).
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportReport is the terminal summary of an import run.
type ImportReport struct {
	Status              ImportStatus      `json:"status"`
	Method              ImportMethod      `json:"method"`
	Created             int               `json:"created"`
	Failed              int               `json:"failed"`
	Updated             int               `json:"updated,omitempty"`
	EmbeddedImagesFound *int              `json:"embeddedImagesFound,omitempty"`
	RowErrors           []RowError        `json:"rowErrors,omitempty"`
	ImagesSelected      int               `json:"imagesSelected"`
	ImagesUploaded      int               `json:"imagesUploaded"`
	ImagesFailed        int               `json:"imagesFailed"`
	UnmatchedImages     []string          `json:"unmatchedImages,omitempty"`
	FailedImages        []string          `json:"failedImages,omitempty"`
	ImageMap            map[string]string `json:"imageMap,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
}

// ImportPhase is a state of the import state machine.
type ImportPhase string

const (
	ImportPhaseIdle       ImportPhase = "idle"
	ImportPhaseVerifying  ImportPhase = "verifying"
	ImportPhaseUploading  ImportPhase = "uploading"
	ImportPhaseSubmitting ImportPhase = "submitting"
	ImportPhaseDone       ImportPhase = "done"
	ImportPhaseFailed     ImportPhase = "failed"
)

// ImportProgress is emitted on every phase change and after every settled upload.
type ImportProgress struct {
	ImportID string      `json:"importId"`
	Phase    ImportPhase `json:"phase"`
	Done     int         `json:"done"`
	Total    int         `json:"total"`
	Message  string      `json:"message,omitempty"`
}
