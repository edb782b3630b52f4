package repository

import (
	"time"

	"github.com/DragosMatei/KeyGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// licenseRepository implements the LicenseRepository interface
type licenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository creates a new license repository instance
func NewLicenseRepository(db *gorm.DB) LicenseRepository {
	return &licenseRepository{db: db}
}

// Create creates a new license in the database
func (r *licenseRepository) Create(license *models.License) error {
	return r.db.Create(license).Error
}

// GetByID retrieves a license by its ID
func (r *licenseRepository) GetByID(id uint) (*models.License, error) {
	var license models.License
	err := r.db.First(&license, id).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetByKey retrieves a license by its opaque key
func (r *licenseRepository) GetByKey(key string) (*models.License, error) {
	var license models.License
	err := r.db.Where("license_key = ?", key).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetActiveByDomain retrieves the most recently issued active license bound
// to the given normalized domain.
func (r *licenseRepository) GetActiveByDomain(domain string) (*models.License, error) {
	var license models.License
	err := r.db.Where("domain = ? AND status = ?", domain, models.STATUS_ACTIVE).
		Order("issued_at DESC").
		First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// Update saves all fields of the license
func (r *licenseRepository) Update(license *models.License) error {
	return r.db.Save(license).Error
}

// List returns licenses ordered by creation, newest first
func (r *licenseRepository) List(offset, limit int) ([]models.License, error) {
	var licenses []models.License
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&licenses).Error
	return licenses, err
}

// Count returns the total number of licenses
func (r *licenseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.License{}).Count(&count).Error
	return count, err
}

// CountActiveByUser counts non-cancelled, non-expired licenses of a user
func (r *licenseRepository) CountActiveByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.License{}).
		Where("user_id = ? AND status IN ?", userID, []string{models.STATUS_ACTIVE, models.STATUS_SUSPENDED}).
		Count(&count).Error
	return count, err
}

// UpdateStatusFrom flips the status only when the current status is one of
// the expected values. The guard lives in the WHERE clause, so two
// concurrent transitions cannot both succeed.
func (r *licenseRepository) UpdateStatusFrom(id uint, from []string, to string) error {
	res := r.db.Model(&models.License{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransitionConflict
	}
	return nil
}

// Renew extends the license by one billing period from max(now, expires_at)
// and sets it active. Runs under SELECT ... FOR UPDATE so a concurrent
// cancel cannot interleave between the guard check and the write.
func (r *licenseRepository) Renew(id uint, now time.Time) (*models.License, error) {
	var license models.License

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&license, id).Error; err != nil {
			return err
		}

		if !license.CanRenew() {
			return ErrTransitionConflict
		}

		anchor := now
		if license.ExpiresAt != nil && license.ExpiresAt.After(now) {
			anchor = *license.ExpiresAt
		}
		next := license.NextExpiry(anchor)

		updates := map[string]interface{}{
			"status":     models.STATUS_ACTIVE,
			"expires_at": next,
		}
		if err := tx.Model(&license).Updates(updates).Error; err != nil {
			return err
		}

		license.Status = models.STATUS_ACTIVE
		license.ExpiresAt = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// Transfer rebinds the license to a new domain. The counter guard is part of
// the UPDATE so exceeding the limit fails the whole operation instead of
// clamping the counter.
func (r *licenseRepository) Transfer(id uint, newDomain, rawDomain string) (*models.License, error) {
	var license models.License

	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.License{}).
			Where("id = ? AND transfer_count < max_transfers", id).
			Updates(map[string]interface{}{
				"domain":         newDomain,
				"raw_domain":     rawDomain,
				"transfer_count": gorm.Expr("transfer_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Distinguish a missing license from an exhausted limit.
			if err := tx.First(&license, id).Error; err != nil {
				return err
			}
			return ErrTransferLimitReached
		}
		return tx.First(&license, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// BumpCheckStats applies the validation side effects in one atomic UPDATE.
func (r *licenseRepository) BumpCheckStats(id uint, checkedAt time.Time, ip string) error {
	return r.db.Model(&models.License{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"check_count":     gorm.Expr("check_count + 1"),
			"last_checked_at": checkedAt,
			"last_ip":         ip,
		}).Error
}

// TouchLastCheck refreshes the last-check metadata without touching the
// counter column.
func (r *licenseRepository) TouchLastCheck(id uint, checkedAt time.Time, ip string) error {
	return r.db.Model(&models.License{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"last_checked_at": checkedAt,
			"last_ip":         ip,
		}).Error
}

// SweepExpired denormalizes the stored status of active licenses whose
// expiry lies before the cutoff. Callers must pass a cutoff with the grace
// window already subtracted (models.SweepCutoff): a license still inside
// grace has to keep status active, or the domain-keyed lookup would stop
// finding it and a VALID_GRACE verdict would turn into NOT_FOUND.
func (r *licenseRepository) SweepExpired(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.License{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.STATUS_ACTIVE, cutoff).
		Update("status", models.STATUS_EXPIRED)
	return res.RowsAffected, res.Error
}

// SoftDelete marks the license deleted. Check logs keep referencing the row,
// so licenses are never hard-deleted here.
func (r *licenseRepository) SoftDelete(id uint) error {
	return r.db.Delete(&models.License{}, id).Error
}
