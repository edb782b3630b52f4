package repository

import (
	"time"

	"github.com/DragosMatei/KeyGate/app/models"
	"gorm.io/gorm"
)

// checkLogRepository implements the CheckLogRepository interface
type checkLogRepository struct {
	db *gorm.DB
}

// NewCheckLogRepository creates a new check log repository instance
func NewCheckLogRepository(db *gorm.DB) CheckLogRepository {
	return &checkLogRepository{db: db}
}

// Create appends one audit row. Rows are never updated afterwards.
func (r *checkLogRepository) Create(log *models.LicenseCheckLog) error {
	return r.db.Create(log).Error
}

// GetByID retrieves a single check log entry
func (r *checkLogRepository) GetByID(id uint) (*models.LicenseCheckLog, error) {
	var log models.LicenseCheckLog
	err := r.db.First(&log, id).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ListByLicense returns check logs for a license, newest first
func (r *checkLogRepository) ListByLicense(licenseID uint, offset, limit int) ([]models.LicenseCheckLog, error) {
	var logs []models.LicenseCheckLog
	err := r.db.Where("license_id = ?", licenseID).
		Order("checked_at DESC").
		Offset(offset).Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CountByLicense returns the number of check logs for a license
func (r *checkLogRepository) CountByLicense(licenseID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.LicenseCheckLog{}).
		Where("license_id = ?", licenseID).
		Count(&count).Error
	return count, err
}

// DeleteOlderThan removes one bounded batch of aged rows. The retention job
// calls this in a loop with a checkpoint so it can be interrupted between
// batches without corrupting anything.
func (r *checkLogRepository) DeleteOlderThan(cutoff time.Time, batchSize int) (int64, error) {
	var ids []uint
	err := r.db.Model(&models.LicenseCheckLog{}).
		Where("checked_at < ?", cutoff).
		Order("id ASC").
		Limit(batchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.Where("id IN ?", ids).Delete(&models.LicenseCheckLog{})
	return res.RowsAffected, res.Error
}
