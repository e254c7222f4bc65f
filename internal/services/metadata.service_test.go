package services

import (
	"bytes"
	"image/color"
	"testing"

	"imagevariants/internal/models"
	"imagevariants/internal/types"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataService_Inspect(t *testing.T) {
	s := NewMetadataService()

	png := encodeImage(t, 64, 32)
	meta, err := s.Inspect(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.MimeType)
	assert.Equal(t, ".png", meta.Extension)
	assert.Equal(t, 64, meta.Width)
	assert.Equal(t, 32, meta.Height)
	assert.Equal(t, int64(len(png)), meta.Size)

	var jpg bytes.Buffer
	require.NoError(t, imaging.Encode(&jpg, imaging.New(10, 20, color.White), imaging.JPEG))
	meta, err = s.Inspect(jpg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", meta.MimeType)
	assert.Equal(t, ".jpg", meta.Extension)
	assert.Equal(t, 20, meta.Height)
}

func TestMetadataService_InspectRejects(t *testing.T) {
	s := NewMetadataService()

	for name, data := range map[string][]byte{
		"empty":     nil,
		"text":      []byte("hello world"),
		"truncated": encodeImage(t, 8, 8)[:12],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Inspect(data)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestMetadataService_Apply(t *testing.T) {
	s := NewMetadataService()
	image := &models.Image{Width: 0, Height: 0}
	meta := &ImageMetadata{MimeType: "image/jpeg", Width: 10, Height: 5, Size: 99}

	assert.True(t, s.Apply(image, meta))
	assert.Equal(t, 10, image.Width)
	assert.Equal(t, int64(99), image.Size)
	assert.False(t, s.Apply(image, meta))
}
