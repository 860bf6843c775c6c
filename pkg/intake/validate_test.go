package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOrder(t *testing.T) {
	assert.ErrorIs(t, Validate(false, ""), ErrMissingInput)
	assert.ErrorIs(t, Validate(false, "https://example.com/photo"), ErrUnrecognizedImageURL)
	assert.ErrorIs(t, Validate(true, "https://example.com/photo"), ErrAmbiguousInput)
	assert.NoError(t, Validate(true, ""))
	assert.NoError(t, Validate(false, " https://example.com/a.webp "))
}

func TestHasImageExtensionSubstring(t *testing.T) {
	assert.True(t, HasImageExtension("https://example.com/render?format=.png&w=20"))
	assert.True(t, HasImageExtension("https://example.com/scan.TIFF"))
	assert.False(t, HasImageExtension("https://example.com/image/png"))
	assert.False(t, HasImageExtension(""))
}

func TestValidationErrorKinds(t *testing.T) {
	assert.Equal(t, "missing_input", MissingInput.String())
	assert.True(t, AmbiguousInput.Blocking())
	assert.False(t, DropUnresolved.Blocking())
	assert.Equal(t, StatusDropFailed, ErrDropUnresolved.Error())
	assert.NotErrorIs(t, ErrMissingInput, ErrAmbiguousInput)
}
