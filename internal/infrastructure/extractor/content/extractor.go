// Package content turns archived files into text for classification and a
// preview payload for display.
package content

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const (
	DefaultTextLimit       = 10000
	DefaultPreviewMaxBytes = 8 << 20
	DefaultThumbnailSize   = 640
	DefaultMaxReadBytes    = 64 << 20

	EmptyDocumentMarker = "[Document is empty]"
)

var (
	imageExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
	}
	textExts = map[string]bool{
		".txt": true, ".csv": true, ".json": true, ".md": true, ".log": true, ".xml": true,
	}
)

type Options struct {
	TextLimit       int
	PreviewMaxBytes int
	ThumbnailSize   int
	// MaxReadBytes bounds how much of a file is loaded. Text formats are cut
	// at the bound, other formats above it are not read at all.
	MaxReadBytes int64
	Logger          *slog.Logger
}

type Extractor struct {
	ocr  ports.OCREngine
	opts Options
}

// New returns an extractor. A nil OCR engine disables image OCR, which then
// reports ocrStatus=skipped.
func New(ocr ports.OCREngine, opts Options) *Extractor {
	if opts.TextLimit <= 0 {
		opts.TextLimit = DefaultTextLimit
	}
	if opts.PreviewMaxBytes <= 0 {
		opts.PreviewMaxBytes = DefaultPreviewMaxBytes
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = DefaultThumbnailSize
	}
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = DefaultMaxReadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{ocr: ocr, opts: opts}
}

// Extract fails only when the file cannot be read. Content problems degrade
// to an empty text and an opaque preview.
func (e *Extractor) Extract(ctx context.Context, file domain.FileHandle) (domain.ExtractedContent, error) {
	name := file.Name()
	ext := strings.ToLower(path.Ext(name))
	limit, truncatable := e.readLimit(ext)
	if !truncatable && file.Size() > limit {
		return e.oversized(name, ext, file.Size()), nil
	}

	rc, err := file.Open(ctx)
	if err != nil {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "open file", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return domain.ExtractedContent{}, domain.WrapError(domain.ErrExtraction, "read file", err)
	}
	if int64(len(raw)) > limit {
		if !truncatable {
			return e.oversized(name, ext, int64(len(raw))), nil
		}
		raw = raw[:limit]
	}

	switch {
	case imageExts[ext]:
		return e.extractImage(ctx, name, ext, raw), nil
	case ext == ".docx":
		return e.extractDocx(name, raw), nil
	case textExts[ext]:
		return e.textContent(string(raw), mimeForText(ext)), nil
	case ext == ".xlsx" || ext == ".xlsm":
		return e.extractSpreadsheet(name, raw), nil
	case ext == ".html" || ext == ".htm":
		return e.extractHTML(name, raw), nil
	case ext == ".pdf":
		return e.extractPDF(name, raw), nil
	default:
		return domain.ExtractedContent{
			OCRStatus: domain.OCRSkipped,
			Preview:   e.binaryPreview(domain.PreviewBinary, "application/octet-stream", raw),
		}, nil
	}
}

// readLimit returns the byte budget for a format. Plain text only needs
// enough bytes for TextLimit runes; opaque formats only need the preview.
func (e *Extractor) readLimit(ext string) (limit int64, truncatable bool) {
	switch {
	case textExts[ext]:
		return min(int64(e.opts.TextLimit)*utf8.UTFMax+textSlackBytes, e.opts.MaxReadBytes), true
	case ext == ".html" || ext == ".htm":
		return e.opts.MaxReadBytes, true
	case imageExts[ext], ext == ".docx", ext == ".xlsx", ext == ".xlsm", ext == ".pdf":
		return e.opts.MaxReadBytes, false
	default:
		return min(int64(e.opts.PreviewMaxBytes), e.opts.MaxReadBytes), false
	}
}

// textSlackBytes covers leading whitespace trimmed before the rune cut.
const textSlackBytes = 4 << 10

// oversized describes a file that was never loaded: a placeholder preview of
// the right kind and no text.
func (e *Extractor) oversized(name, ext string, size int64) domain.ExtractedContent {
	e.opts.Logger.Info("content_extraction_skipped", "file", name, "size_bytes", size, "max_bytes", e.opts.MaxReadBytes)
	p := &domain.PreviewPayload{Kind: domain.PreviewBinary, MimeType: "application/octet-stream"}
	switch {
	case imageExts[ext]:
		p.Kind, p.MimeType = domain.PreviewImage, imageMime(ext)
	case ext == ".pdf":
		p.Kind, p.MimeType = domain.PreviewPDF, "application/pdf"
	case ext == ".docx":
		p.MimeType = docxMime
	case ext == ".xlsx" || ext == ".xlsm":
		p.MimeType = xlsxMime
	}
	return domain.ExtractedContent{OCRStatus: domain.OCRSkipped, Preview: p}
}

// textContent builds a text result with the same bounded text as inline preview.
func (e *Extractor) textContent(text, mime string) domain.ExtractedContent {
	text = strings.TrimSpace(sanitizeUTF8(text))
	text = truncateRunes(text, e.opts.TextLimit)
	status := domain.OCRCompleted
	if text == "" {
		status = domain.OCRSkipped
	}
	return domain.ExtractedContent{
		Text:      text,
		OCRStatus: status,
		Preview:   &domain.PreviewPayload{Kind: domain.PreviewText, MimeType: mime, Text: text},
	}
}

// binaryPreview drops the payload bytes above the preview cap and keeps the
// kind so the presentation layer can still show a placeholder.
func (e *Extractor) binaryPreview(kind domain.PreviewKind, mime string, raw []byte) *domain.PreviewPayload {
	p := &domain.PreviewPayload{Kind: kind, MimeType: mime}
	if len(raw) <= e.opts.PreviewMaxBytes {
		p.Data = raw
	}
	return p
}

func mimeForText(ext string) string {
	switch ext {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".xml":
		return "application/xml"
	default:
		return "text/plain"
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func extractionFailed(logger *slog.Logger, name, format string, err error) {
	logger.Warn("content_extraction_degraded", "file", name, "format", format, "error", err)
}
