package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"imagevariants/pkg/logger"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ResizeService scales images to fit a square bounding box and re-encodes them
// as JPEG.
type ResizeService struct {
	quality int
	log     logger.Logger
}

type ResizedImage struct {
	Data   []byte
	Width  int
	Height int
}

func NewResizeService(quality int) *ResizeService {
	if quality <= 0 || quality > 100 {
		quality = VariantJPEGQuality
	}
	return &ResizeService{
		quality: quality,
		log:     logger.New("resizeService"),
	}
}

// Decode reads any registered format, applying EXIF orientation.
func (s *ResizeService) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// FitJPEG scales src so neither side exceeds target, never enlarging it, and
// encodes the result as JPEG on a white background.
func (s *ResizeService) FitJPEG(src image.Image, target int) (*ResizedImage, error) {
	log := s.log.Function("FitJPEG")

	if target <= 0 {
		return nil, log.Error("invalid target size", "target", target)
	}

	fitted := imaging.Fit(src, target, target, imaging.Lanczos)
	bounds := fitted.Bounds()

	flattened := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flattened = imaging.Overlay(flattened, fitted, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flattened, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return nil, log.Err("failed to encode JPEG", err, "target", target)
	}

	return &ResizedImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// Resize decodes data and fits it within target.
func (s *ResizeService) Resize(data []byte, target int) (*ResizedImage, error) {
	src, err := s.Decode(data)
	if err != nil {
		return nil, err
	}
	return s.FitJPEG(src, target)
}
