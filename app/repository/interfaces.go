package repository

import (
	"errors"
	"time"

	"github.com/DragosMatei/KeyGate/app/models"
	"gorm.io/gorm"
)

// ErrTransitionConflict is returned when a guarded status update matched no
// row: the license either changed state concurrently or does not exist.
var ErrTransitionConflict = errors.New("license state changed concurrently")

// ErrTransferLimitReached is returned when a transfer would exceed max_transfers.
var ErrTransferLimitReached = errors.New("transfer limit reached")

// LicenseRepository defines the interface for license persistence. All
// status transitions are guarded at the database level so two concurrent
// operations can never both race past a guard check.
type LicenseRepository interface {
	Create(license *models.License) error
	GetByID(id uint) (*models.License, error)
	GetByKey(key string) (*models.License, error)
	GetActiveByDomain(domain string) (*models.License, error)
	Update(license *models.License) error
	List(offset, limit int) ([]models.License, error)
	Count() (int64, error)
	CountActiveByUser(userID uint) (int64, error)

	// UpdateStatusFrom performs a compare-and-swap on the status column.
	UpdateStatusFrom(id uint, from []string, to string) error
	// Renew extends expires_at by one billing period from max(now, expires_at)
	// and re-activates, inside a row-locked transaction.
	Renew(id uint, now time.Time) (*models.License, error)
	// Transfer moves the license to a new domain; the transfer_count guard
	// lives in the UPDATE itself so the limit can fail but never clamp.
	Transfer(id uint, newDomain, rawDomain string) (*models.License, error)

	// BumpCheckStats atomically increments check_count and refreshes the
	// last-check metadata. Best-effort side effect of the validation read path.
	BumpCheckStats(id uint, checkedAt time.Time, ip string) error
	// TouchLastCheck refreshes only the last-check metadata; used when the
	// check_count increment is buffered through the metrics counter instead.
	TouchLastCheck(id uint, checkedAt time.Time, ip string) error
	// SweepExpired flips active licenses expired before the cutoff and
	// returns the affected rows. The cutoff must already account for the
	// grace window; denormalization only, validation computes liveness
	// itself.
	SweepExpired(cutoff time.Time) (int64, error)

	SoftDelete(id uint) error
}

// CheckLogRepository defines the interface for the append-only audit log.
type CheckLogRepository interface {
	Create(log *models.LicenseCheckLog) error
	GetByID(id uint) (*models.LicenseCheckLog, error)
	ListByLicense(licenseID uint, offset, limit int) ([]models.LicenseCheckLog, error)
	CountByLicense(licenseID uint) (int64, error)
	// DeleteOlderThan removes at most batchSize rows older than the cutoff.
	// Callers loop until it reports zero, checkpointing between batches.
	DeleteOlderThan(cutoff time.Time, batchSize int) (int64, error)
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	// CanDelete is the explicit precondition for user deletion: a user with
	// active licenses must not be removed.
	CanDelete(id uint) (bool, error)
	Delete(id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	License  LicenseRepository
	CheckLog CheckLogRepository
	User     UserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		License:  NewLicenseRepository(db),
		CheckLog: NewCheckLogRepository(db),
		User:     NewUserRepository(db),
	}
}
