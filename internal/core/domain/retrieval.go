package domain

// RetrievedRecord is a record selected as chat context with its keyword score.
type RetrievedRecord struct {
	Summary RecordSummary `json:"summary"`
	Excerpt string        `json:"excerpt,omitempty"`
	Score   float64       `json:"score"`
}

type Answer struct {
	Text    string            `json:"text"`
	Sources []RetrievedRecord `json:"sources"`
}
