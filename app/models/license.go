package models

import (
	"crypto/rand"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	TYPE_TRIAL    = "trial"
	TYPE_MONTHLY  = "monthly"
	TYPE_YEARLY   = "yearly"
	TYPE_LIFETIME = "lifetime"

	STATUS_ACTIVE    = "active"
	STATUS_SUSPENDED = "suspended"
	STATUS_EXPIRED   = "expired"
	STATUS_CANCELLED = "cancelled"

	// STATE_GRACE is a computed state only: a license past expires_at but
	// still inside the grace window. It is never stored in the status column.
	STATE_GRACE = "grace"

	DefaultMaxTransfers = 3
	TrialPeriodDays     = 14
)

// licenseKeyAlphabet has 32 characters so random bytes can be mapped
// without modulo bias.
const licenseKeyAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const licenseKeyGroups = 4
const licenseKeyGroupLen = 4

type License struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	LicenseKey     string         `gorm:"uniqueIndex;type:varchar(32)" json:"license_key" validate:"required,min=12,max=32"`
	UserID         uint           `gorm:"index" json:"user_id"`
	User           User           `gorm:"foreignKey:UserID" json:"-"`
	Domain         string         `gorm:"index;type:varchar(255)" json:"domain" validate:"required,max=255"`
	RawDomain      string         `gorm:"type:varchar(255)" json:"raw_domain"`
	ProductName    string         `gorm:"type:varchar(150)" json:"product_name" validate:"required,max=150"`
	ProductVersion string         `gorm:"type:varchar(50)" json:"product_version" validate:"max=50"`
	Type           string         `gorm:"type:varchar(20);default:'yearly'" json:"type" validate:"oneof=trial monthly yearly lifetime"`
	Status         string         `gorm:"type:varchar(20);default:'active';index" json:"status" validate:"oneof=active suspended expired cancelled"`
	IssuedAt       time.Time      `gorm:"type:timestamp" json:"issued_at"`
	ExpiresAt      *time.Time     `gorm:"type:timestamp;default:null;index" json:"expires_at"`
	CheckCount     uint64         `gorm:"default:0" json:"check_count"`
	LastCheckedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"last_checked_at"`
	LastIP         string         `gorm:"type:varchar(45)" json:"last_ip"`
	TransferCount  int            `gorm:"default:0" json:"transfer_count"`
	MaxTransfers   int            `gorm:"default:3" json:"max_transfers"`
	Notes          string         `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *License) Validate() error {
	// expires_at is null exactly for lifetime licenses; IsLifetime and the
	// renewal logic both rely on it.
	if (l.Type == TYPE_LIFETIME) != (l.ExpiresAt == nil) {
		return errors.New("expires_at must be unset for lifetime licenses and set otherwise")
	}

	v := validator.New()

	return v.Struct(l)
}

// GenerateLicenseKey creates a fixed-length opaque key of the form
// LIC-XXXX-XXXX-XXXX-XXXX from crypto-grade randomness.
func GenerateLicenseKey() (string, error) {
	b := make([]byte, licenseKeyGroups*licenseKeyGroupLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	groups := make([]string, 0, licenseKeyGroups)
	for g := 0; g < licenseKeyGroups; g++ {
		var sb strings.Builder
		for i := 0; i < licenseKeyGroupLen; i++ {
			sb.WriteByte(licenseKeyAlphabet[b[g*licenseKeyGroupLen+i]&31])
		}
		groups = append(groups, sb.String())
	}

	return "LIC-" + strings.Join(groups, "-"), nil
}

// NewLicense builds an unsaved license with a generated key. The domain must
// already be in normalized form; the raw form is retained for display.
func NewLicense(userID uint, normalizedDomain, rawDomain, productName, licenseType string, expiresAt *time.Time) (*License, error) {
	key, err := GenerateLicenseKey()
	if err != nil {
		return nil, err
	}

	l := &License{
		LicenseKey:   key,
		UserID:       userID,
		Domain:       normalizedDomain,
		RawDomain:    rawDomain,
		ProductName:  productName,
		Type:         licenseType,
		Status:       STATUS_ACTIVE,
		IssuedAt:     time.Now(),
		ExpiresAt:    expiresAt,
		MaxTransfers: DefaultMaxTransfers,
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	return l, nil
}

// IsLifetime reports whether the license never expires
func (l *License) IsLifetime() bool {
	return l.ExpiresAt == nil
}

// EffectiveState computes the live state of the license at the given instant.
// The stored status column wins for suspended/cancelled; expiration is always
// derived from expires_at so a stale status can never resurrect a dead
// license or kill a healthy one. This is the single source of truth used by
// both the validation engine and the expiration sweep.
func (l *License) EffectiveState(now time.Time, grace time.Duration) string {
	switch l.Status {
	case STATUS_CANCELLED:
		return STATUS_CANCELLED
	case STATUS_SUSPENDED:
		return STATUS_SUSPENDED
	}
	if l.ExpiresAt == nil {
		return STATUS_ACTIVE
	}
	if now.Before(*l.ExpiresAt) {
		return STATUS_ACTIVE
	}
	if now.Before(l.ExpiresAt.Add(grace)) {
		return STATE_GRACE
	}
	return STATUS_EXPIRED
}

// SweepCutoff returns the expiry instant before which the sweep may flip an
// active license to expired. Expiries at or after the cutoff are still
// inside the grace window per EffectiveState and must keep their stored
// status, or the domain-keyed lookup would stop resolving them.
func SweepCutoff(now time.Time, grace time.Duration) time.Time {
	return now.Add(-grace)
}

// DaysRemaining returns the whole days until expiration (rounded up), or nil
// for lifetime licenses. Negative once the license is past due.
func (l *License) DaysRemaining(now time.Time) *int {
	if l.ExpiresAt == nil {
		return nil
	}
	days := int(math.Ceil(l.ExpiresAt.Sub(now).Hours() / 24))
	return &days
}

// NextExpiry returns the expiry reached by extending from the given anchor by
// one billing period of the license type. Lifetime licenses have no period.
func (l *License) NextExpiry(from time.Time) *time.Time {
	var next time.Time
	switch l.Type {
	case TYPE_TRIAL:
		next = from.AddDate(0, 0, TrialPeriodDays)
	case TYPE_MONTHLY:
		next = from.AddDate(0, 1, 0)
	case TYPE_YEARLY:
		next = from.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &next
}

// CanRenew reports whether a renew transition is allowed from the current status
func (l *License) CanRenew() bool {
	return (l.Status == STATUS_ACTIVE || l.Status == STATUS_EXPIRED) && l.Type != TYPE_LIFETIME
}

// CanSuspend reports whether a suspend transition is allowed
func (l *License) CanSuspend() bool {
	return l.Status == STATUS_ACTIVE
}

// CanActivate reports whether a reactivation is allowed
func (l *License) CanActivate() bool {
	return l.Status == STATUS_SUSPENDED
}

// CanCancel reports whether a cancel transition is allowed
func (l *License) CanCancel() bool {
	return l.Status == STATUS_ACTIVE || l.Status == STATUS_SUSPENDED
}

// CanTransfer reports whether another domain transfer is allowed
func (l *License) CanTransfer() bool {
	return l.TransferCount < l.MaxTransfers
}
