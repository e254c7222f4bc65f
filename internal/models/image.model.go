package models

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// FolderVariants marks a row as a derived variant rather than an original.
const FolderVariants = "variants"

const (
	TagVariant           = "variant"
	FamilyTagPrefix      = "original-"
	SizeClassThumb       = "thumb"
	SizeClassSmall       = "small"
	SizeClassMedium      = "medium"
	SizeClassLarge       = "large"
	ImageableTypeProduct = "product"
	ImageableTypeVariant = "product_variant"
)

type Image struct {
	BaseModel
	Filename         string         `gorm:"type:text;not null;uniqueIndex"              json:"filename"`
	OriginalFilename string         `gorm:"type:text"                                   json:"originalFilename"`
	URL              string         `gorm:"type:text;not null"                          json:"url"`
	Size             int64          `gorm:"type:bigint;default:0"                       json:"size"`
	Width            int            `gorm:"type:int;default:0"                          json:"width"`
	Height           int            `gorm:"type:int;default:0"                          json:"height"`
	MimeType         string         `gorm:"type:varchar(100)"                           json:"mimeType"`
	Folder           string         `gorm:"type:varchar(255);index"                     json:"folder"`
	Tags             pq.StringArray `gorm:"type:text[];index:idx_images_tags,type:gin"  json:"tags"`
	Title            string         `gorm:"type:text"                                   json:"title"`
	AltText          string         `gorm:"type:text"                                   json:"altText"`
	Description      string         `gorm:"type:text"                                   json:"description"`
	IsPrimary        bool           `gorm:"default:false"                               json:"isPrimary"`
	SortOrder        int            `gorm:"type:int;default:0"                          json:"sortOrder"`

	// Polymorphic owner
	ImageableType *string `gorm:"type:varchar(50);index:idx_images_imageable" json:"imageableType,omitempty"`
	ImageableID   *int    `gorm:"type:int;index:idx_images_imageable"         json:"imageableId,omitempty"`

	// Family link, set on variants only
	ParentImageID *int    `gorm:"type:int;uniqueIndex:idx_images_parent_size"         json:"parentImageId,omitempty"`
	SizeClass     *string `gorm:"type:varchar(16);uniqueIndex:idx_images_parent_size" json:"sizeClass,omitempty"`
}

func (i *Image) BeforeCreate(tx *gorm.DB) (err error) {
	if i.Filename == "" || i.URL == "" {
		return gorm.ErrInvalidValue
	}
	return nil
}

func (i *Image) BeforeUpdate(tx *gorm.DB) (err error) {
	if i.Filename == "" || i.URL == "" {
		return gorm.ErrInvalidValue
	}
	return nil
}

func (i *Image) IsVariant() bool {
	return i.Folder == FolderVariants
}

// DisplayTitle is the name shown to people: title, then upload name, then storage key.
func (i *Image) DisplayTitle() string {
	switch {
	case i.Title != "":
		return i.Title
	case i.OriginalFilename != "":
		return i.OriginalFilename
	default:
		return i.Filename
	}
}

func (i *Image) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Basename returns the filename without its extension and the extension itself
// (including the dot, empty when there is none).
func (i *Image) Basename() (string, string) {
	ext := filepath.Ext(i.Filename)
	return strings.TrimSuffix(i.Filename, ext), ext
}

// EffectiveSizeClass prefers the size_class column and falls back to the size tag.
func (i *Image) EffectiveSizeClass() string {
	if i.SizeClass != nil && *i.SizeClass != "" {
		return *i.SizeClass
	}
	for _, t := range i.Tags {
		if IsSizeClass(t) {
			return t
		}
	}
	return ""
}

func FamilyTag(originalID int) string {
	return fmt.Sprintf("%s%d", FamilyTagPrefix, originalID)
}

func IsSizeClass(s string) bool {
	switch s {
	case SizeClassThumb, SizeClassSmall, SizeClassMedium, SizeClassLarge:
		return true
	}
	return false
}

// SizeClassRank orders variants for display; unknown or missing classes sort last.
func SizeClassRank(sizeClass string) int {
	switch sizeClass {
	case SizeClassThumb:
		return 1
	case SizeClassSmall:
		return 2
	case SizeClassMedium:
		return 3
	case SizeClassLarge:
		return 4
	default:
		return 5
	}
}

// IsReservedTag reports tags that only derivation may assign.
func IsReservedTag(tag string) bool {
	return tag == TagVariant || IsSizeClass(tag) || strings.HasPrefix(tag, FamilyTagPrefix)
}
