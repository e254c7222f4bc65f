package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActivityVariantGenerated = "variant_generated"
	ActivityVariantsDeleted  = "variants_deleted"
	ActivityImageUploaded    = "image_uploaded"
	ActivityImageDeleted     = "image_deleted"
	ActivityImageAttached    = "image_attached"
	ActivityImageDetached    = "image_detached"
)

// ActivityRecord is an append-only audit entry keyed by image id. Rows outlive
// the image they describe.
type ActivityRecord struct {
	ID          int               `gorm:"type:int;primaryKey;autoIncrement" json:"id"`
	ImageID     int               `gorm:"type:int;not null;index"           json:"imageId"`
	Event       string            `gorm:"type:varchar(50);not null"         json:"event"`
	Description string            `gorm:"type:text"                         json:"description"`
	Properties  datatypes.JSONMap `gorm:"type:jsonb"                        json:"properties,omitempty"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index"              json:"createdAt"`
}

func (ActivityRecord) TableName() string {
	return "image_activities"
}
