package content

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func (e *Extractor) extractImage(ctx context.Context, name, ext string, raw []byte) domain.ExtractedContent {
	out := domain.ExtractedContent{
		OCRStatus: domain.OCRSkipped,
		Preview:   e.thumbnail(name, ext, raw),
	}
	if e.ocr == nil {
		return out
	}

	text, err := e.ocr.Recognize(ctx, raw)
	if err != nil {
		extractionFailed(e.opts.Logger, name, "ocr", err)
		out.OCRStatus = domain.OCRFailed
		return out
	}
	out.Text = truncateRunes(sanitizeUTF8(text), e.opts.TextLimit)
	out.OCRStatus = domain.OCRCompleted
	return out
}

// thumbnail re-encodes the image as a bounded JPEG. Formats the decoder does
// not know keep the original bytes as preview.
func (e *Extractor) thumbnail(name, ext string, raw []byte) *domain.PreviewPayload {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		extractionFailed(e.opts.Logger, name, "image", err)
		return e.binaryPreview(domain.PreviewImage, imageMime(ext), raw)
	}
	bounds := img.Bounds()
	thumb := imaging.Fit(img, e.opts.ThumbnailSize, e.opts.ThumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		extractionFailed(e.opts.Logger, name, "thumbnail", err)
		return e.binaryPreview(domain.PreviewImage, imageMime(ext), raw)
	}
	return &domain.PreviewPayload{
		Kind:     domain.PreviewImage,
		MimeType: "image/jpeg",
		Data:     buf.Bytes(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}
}

func imageMime(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
