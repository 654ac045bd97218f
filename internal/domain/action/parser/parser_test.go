package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-gateway/internal/domain/action/entity"
)

func TestParseSingleToken(t *testing.T) {
	p := Parse("Added it for you [ADD_TO_CART: Widget]")

	assert.Equal(t, "Added it for you", p.CleanedText)
	require.Len(t, p.Tokens, 1)
	tok := p.Tokens[0]
	assert.Equal(t, entity.KindAddToCart, tok.Kind)
	assert.Equal(t, "Widget", tok.Argument)
	assert.Equal(t, 0, tok.Index)
	assert.Equal(t, "[ADD_TO_CART: Widget]", tok.Raw)
	assert.NoError(t, tok.Err)
}

func TestParsePriceScenario(t *testing.T) {
	p := Parse("The price is 100 [ADD_TO_CART: SKU-1]")
	assert.Equal(t, "The price is 100", p.CleanedText)
	require.Len(t, p.Tokens, 1)
	assert.Equal(t, "SKU-1", p.Tokens[0].Argument)

	p = Parse("The price is 100 [ADD_TO_CART: SKU-1].")
	assert.Equal(t, "The price is 100.", p.CleanedText)
}

func TestParseToleratesFormatting(t *testing.T) {
	tests := []struct {
		raw  string
		kind entity.Kind
		arg  string
	}{
		{"[add_to_cart:Widget]", entity.KindAddToCart, "Widget"},
		{"[  Add_To_Cart  :   Blue Widget  ]", entity.KindAddToCart, "Blue Widget"},
		{"[SEND_IMAGE: widget-front]", entity.KindSendImage, "widget-front"},
		{"[send_image :https://cdn.example/a.png]", entity.KindSendImage, "https://cdn.example/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := Parse(tt.raw)
			require.Len(t, p.Tokens, 1)
			assert.Equal(t, tt.kind, p.Tokens[0].Kind)
			assert.Equal(t, tt.arg, p.Tokens[0].Argument)
			assert.Empty(t, p.CleanedText)
		})
	}
}

func TestParseMalformedStaysText(t *testing.T) {
	tests := []string{
		"See [DELETE_CART: all] now",
		"Nested [ADD_TO_CART: [Widget]] here",
		"[[ADD_TO_CART: A]]",
		"Aside [see [ADD_TO_CART: A] inside] ok",
		"Open [[ADD_TO_CART: A] dangling",
		"Unclosed [ADD_TO_CART: Widget",
		"Missing colon [ADD_TO_CART Widget]",
		"Dash [ADD-TO-CART: Widget]",
		"Just [brackets] and [1]",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			p := Parse(raw)
			assert.Empty(t, p.Tokens)
			assert.Equal(t, raw, p.CleanedText)
		})
	}
}

func TestParseTokenAfterNestedSegment(t *testing.T) {
	p := Parse("[[ADD_TO_CART: A]] then [ADD_TO_CART: Widget]")
	require.Len(t, p.Tokens, 1)
	assert.Equal(t, "Widget", p.Tokens[0].Argument)
	assert.Equal(t, "[[ADD_TO_CART: A]] then", p.CleanedText)
}

func TestParseEmptyArgumentIsRejectedAndStripped(t *testing.T) {
	p := Parse("Sure! [ADD_TO_CART:  ] Anything else? [SEND_IMAGE]")

	assert.Equal(t, "Sure! Anything else?", p.CleanedText)
	require.Len(t, p.Tokens, 2)
	assert.ErrorIs(t, p.Tokens[0].Err, entity.ErrInvalidActionToken)
	assert.ErrorIs(t, p.Tokens[1].Err, entity.ErrInvalidActionToken)
	assert.Equal(t, 1, p.Tokens[1].Index)
}

func TestParseMultipleTokensAndSpacing(t *testing.T) {
	p := Parse("Here it is [SEND_IMAGE: widget], and [ADD_TO_CART: Widget] it's in your cart!")

	assert.Equal(t, "Here it is, and it's in your cart!", p.CleanedText)
	require.Len(t, p.Tokens, 2)
	assert.Equal(t, entity.KindSendImage, p.Tokens[0].Kind)
	assert.Equal(t, entity.KindAddToCart, p.Tokens[1].Kind)
	assert.Equal(t, 1, p.Tokens[1].Index)
}

func TestParseUnknownTokenDoesNotShiftIndexes(t *testing.T) {
	p := Parse("[FOO: x] [ADD_TO_CART: Widget] [ADD_TO_CART: Gadget]")

	require.Len(t, p.Tokens, 2)
	assert.Equal(t, 0, p.Tokens[0].Index)
	assert.Equal(t, 1, p.Tokens[1].Index)
	assert.Equal(t, "[FOO: x]", p.CleanedText)
}

func TestParseKeepsNewlines(t *testing.T) {
	p := Parse("Line one [SEND_IMAGE: a]\nLine two")
	assert.Equal(t, "Line one\nLine two", p.CleanedText)
}

func TestParseNoTokens(t *testing.T) {
	p := Parse("  plain reply  ")
	assert.Empty(t, p.Tokens)
	assert.Equal(t, "plain reply", p.CleanedText)
}
