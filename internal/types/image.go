package types

import (
	"imagevariants/internal/models"
)

type ResolutionStatus string

const (
	// ResolutionSelf means the image is an original and resolves to itself.
	ResolutionSelf ResolutionStatus = "self"
	// ResolutionResolved means a variant's original was found.
	ResolutionResolved ResolutionStatus = "resolved"
	// ResolutionFallback means a variant could not be linked to its original and
	// the image itself was returned in its place.
	ResolutionFallback ResolutionStatus = "fallback"
)

// Resolution is the outcome of walking from an image to its original.
type Resolution struct {
	Status   ResolutionStatus `json:"status"`
	Original *models.Image    `json:"original"`
	// OriginalID is the id named by the variant's parent column or family tag,
	// even when that row no longer exists.
	OriginalID int   `json:"originalId,omitempty"`
	Reason     error `json:"-"`
}

func (r Resolution) IsFallback() bool {
	return r.Status == ResolutionFallback
}

type FamilyView struct {
	Original   *models.Image   `json:"original"`
	Variants   []*models.Image `json:"variants"`
	All        []*models.Image `json:"all"`
	Resolution Resolution      `json:"resolution"`
}

type VariantFailure struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

type SkippedVariant struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type DerivationResult struct {
	OriginalID     int              `json:"originalId"`
	Generated      []*models.Image  `json:"generated"`
	RequestedTypes []string         `json:"requestedTypes"`
	GeneratedCount int              `json:"generatedCount"`
	Skipped        []SkippedVariant `json:"skipped,omitempty"`
	Failures       []VariantFailure `json:"failures,omitempty"`
}

type BulkDeleteResult struct {
	DeletedCount int         `json:"deletedCount"`
	DeletedItems []int       `json:"deletedItems"`
	Errors       []ItemError `json:"errors"`
}

type DeleteVariantsResult struct {
	OriginalID   int   `json:"originalId"`
	DeletedCount int   `json:"deletedCount"`
	DeletedItems []int `json:"deletedItems"`
}

type UploadRequest struct {
	OriginalFilename string
	Data             []byte
	Folder           string
	Tags             []string
	Title            string
	AltText          string
	Description      string
}

type AttachRequest struct {
	AttachableType string `json:"attachableType"`
	AttachableID   int    `json:"attachableId"`
}

// DerivationRequest is the queued form of a DeriveVariants call.
type DerivationRequest struct {
	ImageID int      `json:"imageId"`
	Types   []string `json:"types,omitempty"`
}
