package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"imagevariants/internal/models"
	"imagevariants/internal/types"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

var allowedImageMIMEs = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageMetadata is what can be learned from an object's bytes alone.
type ImageMetadata struct {
	MimeType  string
	Extension string
	Width     int
	Height    int
	Size      int64
}

// MetadataService extracts content type and pixel dimensions. It is the step
// that fills width and height on records after they are created.
type MetadataService struct{}

func NewMetadataService() *MetadataService {
	return &MetadataService{}
}

// Inspect sniffs the content type and reads dimensions from the image header
// without decoding pixels.
func (s *MetadataService) Inspect(data []byte) (*ImageMetadata, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", types.ErrValidation)
	}

	mime := mimetype.Detect(data)
	mimeType := strings.ToLower(mime.String())
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}

	ext, ok := allowedImageMIMEs[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported mime type %s", types.ErrValidation, mimeType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable image header: %v", types.ErrValidation, err)
	}

	return &ImageMetadata{
		MimeType:  mimeType,
		Extension: ext,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Size:      int64(len(data)),
	}, nil
}

// Apply copies extracted metadata onto img and reports whether anything changed.
func (s *MetadataService) Apply(img *models.Image, meta *ImageMetadata) bool {
	changed := img.Width != meta.Width ||
		img.Height != meta.Height ||
		img.MimeType != meta.MimeType ||
		img.Size != meta.Size

	img.Width = meta.Width
	img.Height = meta.Height
	img.MimeType = meta.MimeType
	img.Size = meta.Size
	return changed
}
