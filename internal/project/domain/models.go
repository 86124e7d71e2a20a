package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Project groups trips under a customer engagement.
type Project struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Code       string       `gorm:"type:text;not null;uniqueIndex:ux_projects_code" json:"code"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Active     bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }
