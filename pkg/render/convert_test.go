package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/errors"
)

func TestParseFormats(t *testing.T) {
	fs, err := ParseFormats("svg, PNG,svg,pdf")
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatSVG, FormatPNG, FormatPDF}, fs)

	fs, err = ParseFormats("")
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatSVG}, fs)

	_, err = ParseFormats("svg,gif")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
}

func TestEncodeSVGPassthrough(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	out, err := Encode(context.Background(), svg, FormatSVG)
	require.NoError(t, err)
	assert.Equal(t, svg, out)
	assert.Equal(t, ".svg", FormatSVG.Ext())
}

func TestToPNG(t *testing.T) {
	if !Available() {
		t.Skip("rsvg-convert not installed")
	}
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`)
	png, err := ToPNG(context.Background(), svg, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
