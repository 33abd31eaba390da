package tesseract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNormalizesLanguages(t *testing.T) {
	assert.Equal(t, []string{"eng"}, New(nil).Languages())
	assert.Equal(t, []string{"rus", "eng"}, New([]string{" rus ", "", "eng"}).Languages())
}
