package processing

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_getTimeOffsetFrom(t *testing.T) {
	t9 := 9 * 3600
	t95 := 9*3600 + 1800
	m95 := -(9*3600 + 1800)
	m05 := -1800
	t0 := 0
	tests := []struct {
		name string
		in   string
		want *int
	}{
		{"err", "asas", nil},
		{"+09:00", "+09:00", &t9},
		{"+00:00", "+00:00", &t0},
		{"+09:30", "+09:30", &t95},
		{"-09:30", "-09:30", &m95},
		{"-00:30", "-00:30", &m05},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getTimeOffsetFrom(tt.in))
		})
	}
}

func TestReadMetadata_DecodeConfigFallback(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))

	meta := ReadMetadata(buf.Bytes())
	assert.Nil(t, meta.CapturedAt, "png carries no exif")
	require.NotNil(t, meta.Width)
	require.NotNil(t, meta.Height)
	assert.Equal(t, 64, *meta.Width)
	assert.Equal(t, 48, *meta.Height)
}

func TestReadMetadata_Unreadable(t *testing.T) {
	meta := ReadMetadata([]byte("definitely not an image"))
	assert.Nil(t, meta.CapturedAt)
	assert.Nil(t, meta.Width)
	assert.Nil(t, meta.Height)
}
