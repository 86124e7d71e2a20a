package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer is a billing dimension referenced by projects and trips.
type Customer struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null;uniqueIndex:ux_customers_name" json:"name"`
	ExternalRef *string      `gorm:"type:text" json:"external_ref,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
