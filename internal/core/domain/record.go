package domain

import (
	"path"
	"strings"
	"time"
)

type OCRStatus string

const (
	OCRPending   OCRStatus = "pending"
	OCRCompleted OCRStatus = "completed"
	OCRFailed    OCRStatus = "failed"
	OCRSkipped   OCRStatus = "skipped"
)

type RecordStatus string

const (
	StatusActive    RecordStatus = "active"
	StatusArchived  RecordStatus = "archived"
	StatusDestroyed RecordStatus = "destroyed"
)

func ParseRecordStatus(raw string) (RecordStatus, bool) {
	switch s := RecordStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusArchived, StatusDestroyed:
		return s, true
	default:
		return "", false
	}
}

type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

func ParseImportance(raw string) (Importance, bool) {
	switch v := Importance(strings.ToLower(strings.TrimSpace(raw))); v {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return v, true
	default:
		return "", false
	}
}

type Confidentiality string

const (
	ConfidentialityPublic       Confidentiality = "public"
	ConfidentialityInternal     Confidentiality = "internal"
	ConfidentialityConfidential Confidentiality = "confidential"
	ConfidentialitySecret       Confidentiality = "secret"
)

func ParseConfidentiality(raw string) (Confidentiality, bool) {
	switch v := Confidentiality(strings.ToLower(strings.TrimSpace(raw))); v {
	case ConfidentialityPublic, ConfidentialityInternal, ConfidentialityConfidential, ConfidentialitySecret:
		return v, true
	default:
		return "", false
	}
}

// FileRecord is one archived document. ID is opaque and stable; the
// reconciliation key is ISOMetadata.OriginalPath.
type FileRecord struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Size          int64        `json:"size"`
	LastModified  time.Time    `json:"lastModified"`
	ExtractedText string       `json:"extractedText,omitempty"`
	Preview       *Preview     `json:"preview,omitempty"`
	ISOMetadata   *ISOMetadata `json:"isoMetadata,omitempty"`
}

type ISOMetadata struct {
	RecordID        string          `json:"recordId"`
	OriginalPath    string          `json:"originalPath"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	DocumentType    string          `json:"documentType,omitempty"`
	Entity          string          `json:"entity,omitempty"`
	Category        string          `json:"category,omitempty"`
	Sender          string          `json:"sender,omitempty"`
	Recipient       string          `json:"recipient,omitempty"`
	Keywords        []string        `json:"keywords,omitempty"`
	Importance      Importance      `json:"importance,omitempty"`
	Confidentiality Confidentiality `json:"confidentiality,omitempty"`
	Status          RecordStatus    `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	OCRStatus       OCRStatus       `json:"ocrStatus"`
	ExpiryDate      *time.Time      `json:"expiryDate,omitempty"`
	RetentionPolicy string          `json:"retentionPolicy,omitempty"`
	Degraded        bool            `json:"degraded,omitempty"`
}

// Preview is the renderable payload of a record. Binary payloads live in
// object storage under BlobKey; short text previews are kept inline.
type Preview struct {
	Kind      PreviewKind `json:"kind"`
	MimeType  string      `json:"mimeType"`
	BlobKey   string      `json:"blobKey,omitempty"`
	Text      string      `json:"text,omitempty"`
	PageCount int         `json:"pageCount,omitempty"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
}

type PreviewKind string

const (
	PreviewImage  PreviewKind = "image"
	PreviewPDF    PreviewKind = "pdf"
	PreviewText   PreviewKind = "text"
	PreviewBinary PreviewKind = "binary"
)

// Path returns the reconciliation key or "" when the record was never classified.
func (r *FileRecord) Path() string {
	if r == nil || r.ISOMetadata == nil {
		return ""
	}
	return r.ISOMetadata.OriginalPath
}

func (r *FileRecord) RecordID() string {
	if r == nil || r.ISOMetadata == nil {
		return ""
	}
	return r.ISOMetadata.RecordID
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Preview != nil {
		p := *r.Preview
		out.Preview = &p
	}
	if r.ISOMetadata != nil {
		m := *r.ISOMetadata
		if r.ISOMetadata.Keywords != nil {
			m.Keywords = append([]string(nil), r.ISOMetadata.Keywords...)
		}
		if r.ISOMetadata.ExpiryDate != nil {
			exp := *r.ISOMetadata.ExpiryDate
			m.ExpiryDate = &exp
		}
		out.ISOMetadata = &m
	}
	return &out
}

// IsComplianceAlert reports an expired retention date on a record still marked active.
func (r *FileRecord) IsComplianceAlert(now time.Time) bool {
	if r == nil || r.ISOMetadata == nil || r.ISOMetadata.ExpiryDate == nil {
		return false
	}
	return r.ISOMetadata.Status == StatusActive && r.ISOMetadata.ExpiryDate.Before(now)
}

// ParentDir returns the directory part of a slash separated archive path.
func ParentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// RecordSummary is the compact view of a record handed to the classifier
// for cross-referencing.
type RecordSummary struct {
	RecordID     string `json:"recordId"`
	Title        string `json:"title"`
	DocumentType string `json:"documentType,omitempty"`
	Path         string `json:"path"`
}

func (r *FileRecord) Summary() RecordSummary {
	s := RecordSummary{Path: r.Path()}
	if r.ISOMetadata != nil {
		s.RecordID = r.ISOMetadata.RecordID
		s.Title = r.ISOMetadata.Title
		s.DocumentType = r.ISOMetadata.DocumentType
	}
	return s
}

type RecordFilter struct {
	Query           string
	Category        string
	DocumentType    string
	Status          RecordStatus
	Importance      Importance
	Confidentiality Confidentiality
	PathPrefix      string
	Limit           int
	Offset          int
}

type ArchiveStats struct {
	Total            int                  `json:"total"`
	ByStatus         map[RecordStatus]int `json:"byStatus"`
	ByCategory       map[string]int       `json:"byCategory"`
	ByDocumentType   map[string]int       `json:"byDocumentType"`
	ByOCRStatus      map[OCRStatus]int    `json:"byOcrStatus"`
	ComplianceAlerts int                  `json:"complianceAlerts"`
	TotalBytes       int64                `json:"totalBytes"`
	ConnectedRoot    string               `json:"connectedRoot,omitempty"`
	LastSync         *time.Time           `json:"lastSync,omitempty"`
}
