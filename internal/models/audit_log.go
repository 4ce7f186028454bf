package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records security-relevant events. IPAddress holds the anonymised
// form until the account's failure count crosses the disclosure threshold.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID *string        `gorm:"type:uuid;index" json:"account_id"`
	Account   *Account       `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Action    string         `gorm:"not null;index" json:"action"`
	Result    string         `gorm:"not null" json:"result"`
	Reason    string         `json:"reason,omitempty"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
