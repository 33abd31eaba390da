package domain

// ClassificationRequest is what the external classifier receives.
type ClassificationRequest struct {
	FileName       string          `json:"fileName"`
	TextExcerpt    string          `json:"textExcerpt"`
	ArchiveSummary []RecordSummary `json:"archiveSummary"`
	SiblingIDs     []string        `json:"siblingIds"`
}

// ClassifiedFields are the semantic attributes a classifier may populate.
type ClassifiedFields struct {
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
}

// Classification is either a validated classifier result or a degraded stub.
// Reason explains the degradation and is empty otherwise.
type Classification struct {
	Fields   ClassifiedFields
	Degraded bool
	Reason   string
}

const DegradedDescription = "Automatic classification unavailable; archived with minimal metadata."

func DegradedClassification(fileName, reason string) Classification {
	return Classification{
		Fields: ClassifiedFields{
			Title:       fileName,
			Description: DegradedDescription,
		},
		Degraded: true,
		Reason:   reason,
	}
}
