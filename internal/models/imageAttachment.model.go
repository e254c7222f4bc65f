package models

import (
	"time"

	"gorm.io/gorm"
)

// ImageAttachment links an image to a product or product variant. An image may
// be attached to many owners and an owner may hold many images.
type ImageAttachment struct {
	ID             int       `gorm:"type:int;primaryKey;autoIncrement"                 json:"id"`
	ImageID        int       `gorm:"type:int;not null;uniqueIndex:idx_image_attachment" json:"imageId"`
	AttachableType string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_image_attachment" json:"attachableType"`
	AttachableID   int       `gorm:"type:int;not null;uniqueIndex:idx_image_attachment" json:"attachableId"`
	CreatedAt      time.Time `gorm:"autoCreateTime"                                    json:"createdAt"`

	Image *Image `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *ImageAttachment) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ImageID == 0 || a.AttachableID == 0 || !IsAttachableType(a.AttachableType) {
		return gorm.ErrInvalidValue
	}
	return nil
}

func IsAttachableType(t string) bool {
	return t == ImageableTypeProduct || t == ImageableTypeVariant
}
