package models

import (
	"time"
)

const (
	CHECK_TYPE_API     = "api"
	CHECK_TYPE_MANUAL  = "manual"
	CHECK_TYPE_WEBHOOK = "webhook"
)

// LicenseCheckLog is the append-only audit record of a single validation
// attempt. One row is written per attempt regardless of verdict; rows are
// never updated and only removed by the retention job.
type LicenseCheckLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	LicenseID    *uint     `gorm:"index;default:null" json:"license_id"`
	License      *License  `gorm:"foreignKey:LicenseID" json:"-"`
	Domain       string    `gorm:"type:varchar(255)" json:"domain"`
	IsValid      bool      `gorm:"default:false" json:"is_valid"`
	CheckType    string    `gorm:"type:varchar(20);default:'api'" json:"check_type"`
	IPAddress    string    `gorm:"type:varchar(45);index" json:"ip_address"`
	UserAgent    string    `gorm:"type:varchar(255)" json:"user_agent"`
	ResponseData string    `gorm:"type:text" json:"response_data"`
	CheckedAt    time.Time `gorm:"type:timestamp;index" json:"checked_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
