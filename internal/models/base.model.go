package models

import (
	"time"
)

// BaseModel carries no DeletedAt: image rows are removed outright so the unique
// filename and (parent, size class) indexes stay reusable.
type BaseModel struct {
	ID        int       `gorm:"type:int;primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime"                    json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"                    json:"updatedAt"`
}
