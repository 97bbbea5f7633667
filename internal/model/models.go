package model

import (
	"io"
	"time"
)

// Submission is one inbound multipart request: flat text fields plus the
// ordered list of uploaded files, exactly as received from the ingress layer.
type Submission struct {
	Fields map[string]string
	Files  []UploadedFile
}

// UploadedFile describes one file part. Open returns a fresh reader over the
// part's content; callers own closing it.
type UploadedFile struct {
	FieldName        string
	OriginalFilename string
	ContentType      string
	Size             int64
	Open             func() (io.ReadCloser, error)
}

// FileLink is the durable reference to one stored file.
type FileLink struct {
	Key              string    `json:"key"`
	URL              string    `json:"url"`
	OriginalFilename string    `json:"originalFilename"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// Participant holds the fixed demographic fields. Every field is optional
// on input and defaults to the empty string, never a missing key.
type Participant struct {
	Name       string `json:"name"`
	Gender     string `json:"gender"`
	Age        string `json:"age"`
	Education  string `json:"education"`
	Occupation string `json:"occupation"`
	Email      string `json:"email"`
}

// Condition holds the experiment-condition assignment fields.
type Condition struct {
	Condition string `json:"condition"`
	Group     string `json:"group"`
}

// FileRefs groups stored file links the way downstream consumers read them:
// audio answers keyed by question, PDFs keyed by document kind.
type FileRefs struct {
	AudioFiles map[string]FileLink `json:"audioFiles"`
	PDFFiles   map[string]FileLink `json:"pdfFiles"`
}

// RecordMeta is the immutable metadata block of a persisted record.
type RecordMeta struct {
	DocumentID string    `json:"documentId"`
	CreatedAt  time.Time `json:"createdAt"`
	Version    string    `json:"version"`
}

// StructuredRecord is the fully assembled output of one submission.
// It is created once, never mutated, and persisted exactly once.
type StructuredRecord struct {
	DocumentID  string                     `json:"documentId"`
	Participant Participant                `json:"participant"`
	Condition   Condition                  `json:"condition"`
	Survey      map[string]map[string]*int `json:"survey"`
	Scores      map[string]*float64        `json:"scores"`
	Files       FileRefs                   `json:"files"`
	Metadata    RecordMeta                 `json:"metadata"`
}

// Receipt is the success outcome handed back to the caller.
type Receipt struct {
	DocumentID string
}
