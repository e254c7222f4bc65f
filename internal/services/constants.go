package services

import (
	"time"

	"imagevariants/internal/models"
)

// VariantSizes maps each variant type to the bounding box edge, in pixels, that
// the longer side is scaled to fit.
var VariantSizes = map[string]int{
	models.SizeClassThumb:  150,
	models.SizeClassSmall:  300,
	models.SizeClassMedium: 600,
	models.SizeClassLarge:  1200,
}

// DefaultVariantTypes is used when a derivation request names no types.
var DefaultVariantTypes = []string{
	models.SizeClassThumb,
	models.SizeClassSmall,
	models.SizeClassMedium,
}

const (
	VariantJPEGQuality   = 85
	VariantMimeType      = "image/jpeg"
	DefaultVariantExt    = ".jpg"
	VariantLockKeyFormat = "variant:%d:%s"

	DefaultStorageTimeout        = 30 * time.Second
	DefaultDerivationConcurrency = 3
	ActivityFamilyLimit          = 200
	OrphanSweepBatchSize         = 500
)
