package models

// ProgressStatus is the outcome of processing one attachment.
type ProgressStatus string

const (
	ProgressExported ProgressStatus = "exported"
	ProgressSkipped  ProgressStatus = "skipped"
)

// Progress reports the outcome of one attachment of an export.
type Progress struct {
	// Index is the zero-based position in the requested list.
	Index int
	Total int

	AttachmentID string
	Status       ProgressStatus

	// Path and Bytes are set for exported attachments.
	Path  string
	Bytes int64

	// Err explains why a skipped attachment was left out.
	Err error
}

// ProgressFunc receives one Progress per attachment, in list order.
type ProgressFunc func(Progress)
