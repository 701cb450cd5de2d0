package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTextRejectsGarbage(t *testing.T) {
	_, err := ExtractText([]byte("this is not a pdf"))
	assert.Error(t, err)

	_, err = ExtractText(nil)
	assert.Error(t, err)
}
