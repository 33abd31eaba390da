// Package prompt holds the prompts shared by the LLM adapters.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const classificationInstructions = `You are a records manager applying ISO 15489.
Classify the document below and return one strict JSON object with keys:
title (string), description (string, one sentence), documentType (string, e.g. Invoice, Contract, Report, Letter),
entity (string, organisation the record belongs to), category (string), sender (string), recipient (string),
keywords (array of strings), importance (low|medium|high|critical), confidentiality (public|internal|confidential|secret).
Use the archive summary to keep document types and categories consistent with existing records.
Related files in the same folder are listed by record id.
No markdown, no extra keys.`

// ClassificationInstructions is the system part of the classification prompt.
func ClassificationInstructions() string {
	return classificationInstructions
}

// ClassificationInput renders the per-file part of the classification prompt.
func ClassificationInput(req domain.ClassificationRequest) string {
	var b strings.Builder
	b.WriteString("File name: ")
	b.WriteString(req.FileName)

	if len(req.SiblingIDs) > 0 {
		b.WriteString("\nFiles in the same folder: ")
		b.WriteString(strings.Join(req.SiblingIDs, ", "))
	}

	if len(req.ArchiveSummary) > 0 {
		summary, _ := json.Marshal(req.ArchiveSummary)
		b.WriteString("\nArchive summary: ")
		b.Write(summary)
	}

	b.WriteString("\n\nDocument:\n")
	b.WriteString(req.TextExcerpt)
	return b.String()
}

// Classification is the single-message form used by completion endpoints.
func Classification(req domain.ClassificationRequest) string {
	return classificationInstructions + "\n\n" + ClassificationInput(req)
}

// Answer builds the archive chat prompt.
func Answer(question string, records []domain.RetrievedRecord) string {
	var contextBuilder strings.Builder
	for idx, rec := range records {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] record=%s title=%s type=%s path=%s\n%s\n\n",
			idx+1,
			rec.Summary.RecordID,
			rec.Summary.Title,
			rec.Summary.DocumentType,
			rec.Summary.Path,
			rec.Excerpt,
		))
	}

	return fmt.Sprintf(`You are an archive assistant. Answer the question only from the archived records below.
Cite record ids. If the records are insufficient, say it directly.

Question:
%s

Records:
%s
`, question, contextBuilder.String())
}
