package qr

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataURL(t *testing.T) {
	url, err := DataURL("2@abc,def,ghi,jkl")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, DataURLPrefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, DataURLPrefix))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, Size, img.Bounds().Dx())
}

func TestDataURLEmpty(t *testing.T) {
	_, err := DataURL("")
	assert.Error(t, err)
}
