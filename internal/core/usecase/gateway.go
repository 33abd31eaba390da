package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const (
	MaxExcerptRunes   = 1500
	MaxSummaryRecords = 100
)

type ClassifyInput struct {
	FileName   string
	Text       string
	Summary    []domain.RecordSummary
	SiblingIDs []string
}

// ClassificationGateway turns classifier output into a validated
// domain.Classification. It never fails: transport and parse errors yield a
// degraded stub.
type ClassificationGateway struct {
	classifier ports.MetadataClassifier
	cache      ports.ClassificationCache
}

func NewClassificationGateway(classifier ports.MetadataClassifier, cache ports.ClassificationCache) *ClassificationGateway {
	return &ClassificationGateway{classifier: classifier, cache: cache}
}

func (g *ClassificationGateway) Classify(ctx context.Context, in ClassifyInput) domain.Classification {
	excerpt := BuildExcerpt(in.FileName, in.Text)
	summary := in.Summary
	if len(summary) > MaxSummaryRecords {
		summary = summary[:MaxSummaryRecords]
	}

	key := cacheKey(in.FileName, excerpt, in.SiblingIDs)
	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			return cached
		}
	}

	raw, err := g.classifier.Classify(ctx, domain.ClassificationRequest{
		FileName:       in.FileName,
		TextExcerpt:    excerpt,
		ArchiveSummary: summary,
		SiblingIDs:     in.SiblingIDs,
	})
	if err != nil {
		if !domain.IsKind(err, domain.ErrClassificationTransport) {
			err = domain.WrapError(domain.ErrClassificationTransport, "classify", err)
		}
		return domain.DegradedClassification(in.FileName, err.Error())
	}

	fields, err := ParseClassification(raw)
	if err != nil {
		return domain.DegradedClassification(in.FileName, err.Error())
	}
	if strings.TrimSpace(fields.Title) == "" {
		fields.Title = in.FileName
	}

	result := domain.Classification{Fields: fields}
	if g.cache != nil {
		g.cache.Add(key, result)
	}
	return result
}

// BuildExcerpt bounds the text handed to the classifier or substitutes a
// placeholder describing the content type when there is no text.
func BuildExcerpt(fileName, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return contentPlaceholder(fileName)
	}
	return truncateRunes(text, MaxExcerptRunes)
}

func contentPlaceholder(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp", "bmp", "tif", "tiff":
		return fmt.Sprintf("[Image file %s: no recognizable text]", fileName)
	case "pdf":
		return fmt.Sprintf("[PDF document %s: text not extracted]", fileName)
	case "":
		return fmt.Sprintf("[File %s: no text content]", fileName)
	default:
		return fmt.Sprintf("[%s file %s: no text content]", strings.ToUpper(ext), fileName)
	}
}

// ParseClassification decodes a classifier response. It tries a strict decode
// of the whole body first, then the first balanced top-level JSON object.
func ParseClassification(raw string) (domain.ClassifiedFields, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil || obj == nil {
		candidate, ok := firstJSONObject(raw)
		if !ok {
			return domain.ClassifiedFields{}, domain.WrapError(domain.ErrClassificationParse, "parse classification", errors.New("no json object in response"))
		}
		obj = nil
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			return domain.ClassifiedFields{}, domain.WrapError(domain.ErrClassificationParse, "parse classification", err)
		}
	}
	return coerceFields(obj), nil
}

// firstJSONObject finds the first balanced {...} block, ignoring braces that
// appear inside JSON strings.
func firstJSONObject(raw string) (string, bool) {
	for start := strings.IndexByte(raw, '{'); start >= 0; {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(raw); i++ {
			c := raw[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := raw[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(raw)
				}
			}
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func coerceFields(obj map[string]any) domain.ClassifiedFields {
	fields := domain.ClassifiedFields{
		Title:        stringField(obj, "title"),
		Description:  stringField(obj, "description"),
		DocumentType: stringField(obj, "documentType", "document_type", "type"),
		Entity:       stringField(obj, "entity"),
		Category:     stringField(obj, "category"),
		Sender:       stringField(obj, "sender"),
		Recipient:    stringField(obj, "recipient"),
		Keywords:     listField(obj, "keywords", "tags"),
	}
	if v, ok := domain.ParseImportance(stringField(obj, "importance")); ok {
		fields.Importance = v
	}
	if v, ok := domain.ParseConfidentiality(stringField(obj, "confidentiality")); ok {
		fields.Confidentiality = v
	}
	return fields
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" && s != "---" {
				return s
			}
		case float64, bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func listField(obj map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, part := range strings.Split(v, ",") {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func cacheKey(fileName, excerpt string, siblings []string) string {
	h := sha256.New()
	h.Write([]byte(excerpt))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(siblings, "\x1f")))
	return fileName + ":" + hex.EncodeToString(h.Sum(nil))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
