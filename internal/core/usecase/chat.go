package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const chatExcerptRunes = 800

type ChatUseCase struct {
	store     *ArchiveStore
	generator ports.AnswerGenerator
}

func NewChatUseCase(store *ArchiveStore, generator ports.AnswerGenerator) *ChatUseCase {
	return &ChatUseCase{store: store, generator: generator}
}

func (uc *ChatUseCase) Ask(ctx context.Context, question string, limit int) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	if limit <= 0 {
		limit = 5
	}

	sources := RankRecords(uc.store.Records(), question, limit)
	text, err := uc.generator.GenerateArchiveAnswer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{Text: text, Sources: sources}, nil
}

// RankRecords scores records by query term overlap with their metadata and
// text. Metadata hits weigh more than body text hits.
func RankRecords(records []domain.FileRecord, query string, limit int) []domain.RetrievedRecord {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i := range records {
		score := scoreRecord(&records[i], terms)
		if score > 0 {
			hits = append(hits, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.RetrievedRecord, 0, len(hits))
	for _, h := range hits {
		rec := &records[h.idx]
		excerpt := rec.ExtractedText
		if strings.TrimSpace(excerpt) == "" && rec.ISOMetadata != nil {
			excerpt = rec.ISOMetadata.Description
		}
		out = append(out, domain.RetrievedRecord{
			Summary: rec.Summary(),
			Excerpt: truncateRunes(strings.TrimSpace(excerpt), chatExcerptRunes),
			Score:   h.score,
		})
	}
	return out
}

func scoreRecord(rec *domain.FileRecord, terms []string) float64 {
	var meta strings.Builder
	meta.WriteString(strings.ToLower(rec.Name))
	if m := rec.ISOMetadata; m != nil {
		for _, f := range []string{m.RecordID, m.Title, m.Description, m.DocumentType, m.Category, m.Entity, m.Sender, m.Recipient} {
			meta.WriteByte(' ')
			meta.WriteString(strings.ToLower(f))
		}
		for _, k := range m.Keywords {
			meta.WriteByte(' ')
			meta.WriteString(strings.ToLower(k))
		}
	}
	metaText := meta.String()
	body := strings.ToLower(rec.ExtractedText)

	var score float64
	for _, t := range terms {
		if strings.Contains(metaText, t) {
			score += 3
		}
		score += float64(min(strings.Count(body, t), 5))
	}
	return score
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
