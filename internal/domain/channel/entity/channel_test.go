package entity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	got, err := ParseType("Facebook")
	require.NoError(t, err)
	assert.Equal(t, TypeFacebook, got)

	got, err = ParseType(" whatsapp ")
	require.NoError(t, err)
	assert.Equal(t, TypeWhatsApp, got)

	_, err = ParseType("telegram")
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestMaxTextRunes(t *testing.T) {
	assert.Equal(t, 2000, TypeFacebook.MaxTextRunes())
	assert.Equal(t, 4096, TypeWhatsApp.MaxTextRunes())
}

func TestInboundEventPreview(t *testing.T) {
	assert.Equal(t, "hi", InboundEvent{Text: "hi"}.Preview())
	assert.Equal(t, "[media]", InboundEvent{MediaRefs: []string{"x"}}.Preview())

	long := InboundEvent{Text: strings.Repeat("é", 200)}.Preview()
	assert.Equal(t, previewRunes+1, len([]rune(long)))
}
