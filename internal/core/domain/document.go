package domain

import (
	"fmt"
	"time"
)

// CandidateDocument is an incoming file captured from a source message. Either Data
// or Path holds the content.
type CandidateDocument struct {
	SourceID     string    `json:"source_id"`
	AttachmentID string    `json:"attachment_id,omitempty"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Path         string    `json:"path,omitempty"`
	Data         []byte    `json:"-"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Ref identifies a document within its source message.
func (d CandidateDocument) Ref() string {
	if d.AttachmentID != "" {
		return fmt.Sprintf("%s/%s", d.SourceID, d.AttachmentID)
	}
	return fmt.Sprintf("%s/%s", d.SourceID, d.Filename)
}

type DocumentState string

const (
	StateReceived         DocumentState = "received"
	StateIdentityChecked  DocumentState = "identity-checked"
	StateClassified       DocumentState = "classified"
	StateDedupChecked     DocumentState = "dedup-checked"
	StateOrganized        DocumentState = "organized"
	StateSkippedDuplicate DocumentState = "skipped-duplicate"
	StateSkippedIdentity  DocumentState = "skipped-identity"
	StateFailed           DocumentState = "failed"
)

func (s DocumentState) Terminal() bool {
	switch s {
	case StateOrganized, StateSkippedDuplicate, StateSkippedIdentity, StateFailed:
		return true
	default:
		return false
	}
}

type DocumentOutcome struct {
	SourceID        string         `json:"source_id"`
	Filename        string         `json:"filename,omitempty"`
	State           DocumentState  `json:"state"`
	Label           Label          `json:"label,omitempty"`
	Tier            ConfidenceTier `json:"tier,omitempty"`
	Method          Method         `json:"method,omitempty"`
	Fingerprint     string         `json:"fingerprint,omitempty"`
	DestinationPath string         `json:"destination_path,omitempty"`
	DuplicateOf     string         `json:"duplicate_of,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// SourceRecord is what the identity tracker keeps per ingested source message.
type SourceRecord struct {
	ProcessedAt time.Time `json:"processed_at"`
	Subject     string    `json:"subject,omitempty"`
	Documents   int       `json:"documents"`
}

// ContentRecord is what the content deduplicator keeps per fingerprint.
type ContentRecord struct {
	Path         string    `json:"path"`
	RegisteredAt time.Time `json:"registered_at"`
}
