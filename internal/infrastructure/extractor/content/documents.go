package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const (
	docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// extractDocx reads the body of word/document.xml. A document without
// visible text yields the empty marker so the classifier still has a signal.
func (e *Extractor) extractDocx(name string, raw []byte) domain.ExtractedContent {
	text, err := docxText(raw)
	if err != nil {
		extractionFailed(e.opts.Logger, name, "docx", err)
		return domain.ExtractedContent{
			OCRStatus: domain.OCRFailed,
			Preview:   e.binaryPreview(domain.PreviewBinary, docxMime, raw),
		}
	}
	if strings.TrimSpace(text) == "" {
		text = EmptyDocumentMarker
	}
	return e.textContent(text, "text/plain")
}

// docxText renders body paragraphs and tables one per line. Tables come out
// as markdown rows, which the classifier reads fine.
func docxText(raw []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(it.String())
			sb.WriteByte('\n')
		case *docx.Table:
			sb.WriteString(it.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

func (e *Extractor) extractSpreadsheet(name string, raw []byte) domain.ExtractedContent {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		extractionFailed(e.opts.Logger, name, "xlsx", err)
		return domain.ExtractedContent{
			OCRStatus: domain.OCRFailed,
			Preview:   e.binaryPreview(domain.PreviewBinary, xlsxMime, raw),
		}
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			extractionFailed(e.opts.Logger, name, "xlsx_sheet", err)
			continue
		}
		fmt.Fprintf(&sb, "# %s\n", sheet)
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
		// Sheets past the limit would be cut anyway.
		if sb.Len() > e.opts.TextLimit*4 {
			break
		}
	}
	return e.textContent(sb.String(), "text/tab-separated-values")
}

func (e *Extractor) extractHTML(name string, raw []byte) domain.ExtractedContent {
	text, err := htmlText(raw)
	if err != nil {
		extractionFailed(e.opts.Logger, name, "html", err)
	}
	return e.textContent(text, "text/plain")
}

// htmlText returns visible text, skipping script and style bodies.
func htmlText(raw []byte) (string, error) {
	var (
		sb   strings.Builder
		skip int
	)
	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return sb.String(), err
			}
			return collapseSpaces(sb.String()), nil
		case html.StartTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				skip++
			case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			tn, _ := z.TagName()
			switch string(tn) {
			case "script", "style", "noscript", "template":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// extractPDF keeps the PDF opaque; only the page count is read for the preview.
func (e *Extractor) extractPDF(name string, raw []byte) domain.ExtractedContent {
	preview := e.binaryPreview(domain.PreviewPDF, "application/pdf", raw)
	pages, err := pdfPageCount(raw)
	if err != nil {
		extractionFailed(e.opts.Logger, name, "pdf", err)
	}
	preview.PageCount = pages
	return domain.ExtractedContent{OCRStatus: domain.OCRSkipped, Preview: preview}
}

func pdfPageCount(raw []byte) (pages int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return r.NumPage(), nil
}
