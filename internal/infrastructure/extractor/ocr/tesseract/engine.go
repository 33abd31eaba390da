// Package tesseract recognizes image text with the Tesseract OCR engine.
package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Engine runs one recognition at a time. A gosseract client is not safe for
// concurrent use, so each call builds its own and the mutex bounds CPU use.
type Engine struct {
	languages []string
	mu        sync.Mutex
}

func New(languages []string) *Engine {
	langs := make([]string, 0, len(languages))
	for _, l := range languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Engine{languages: langs}
}

func (e *Engine) Languages() []string {
	return append([]string(nil), e.languages...)
}

func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("set ocr languages: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
