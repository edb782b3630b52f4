package lifecycle

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/normalizer"
)

var (
	// ErrNotFound means the license does not exist (or is soft-deleted).
	ErrNotFound = errors.New("license not found")
	// ErrInvalidTransition means the operation is not allowed from the
	// license's current status.
	ErrInvalidTransition = errors.New("invalid license state transition")
	// ErrTransferLimitExceeded means all allowed transfers are used up.
	ErrTransferLimitExceeded = errors.New("transfer limit exceeded")
	// ErrInvalidDomain means the transfer target domain failed normalization.
	ErrInvalidDomain = errors.New("invalid transfer domain")
)

// Service executes the administrative license state machine. Every operation
// is one guarded atomic update in the repository; the service maps store
// outcomes onto the typed error taxonomy.
type Service struct {
	repo repository.LicenseRepository
	now  func() time.Time
}

func NewService(repo repository.LicenseRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// SetClock replaces the time source. Test helper.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Renew extends the license by one billing period from max(now, expires_at)
// and sets it active. Allowed from active or expired.
func (s *Service) Renew(id uint) (*models.License, error) {
	license, err := s.repo.Renew(id, s.now())
	if err != nil {
		return nil, s.mapError(id, err)
	}
	return license, nil
}

// Suspend pauses an active license. expires_at and check_count are untouched.
func (s *Service) Suspend(id uint) (*models.License, error) {
	return s.transition(id, []string{models.STATUS_ACTIVE}, models.STATUS_SUSPENDED)
}

// Activate resumes a suspended license.
func (s *Service) Activate(id uint) (*models.License, error) {
	return s.transition(id, []string{models.STATUS_SUSPENDED}, models.STATUS_ACTIVE)
}

// Cancel terminates the license. Cancelled is terminal; there is no way back.
func (s *Service) Cancel(id uint) (*models.License, error) {
	return s.transition(id, []string{models.STATUS_ACTIVE, models.STATUS_SUSPENDED}, models.STATUS_CANCELLED)
}

// Transfer rebinds the license to a new domain, consuming one transfer.
func (s *Service) Transfer(id uint, newDomain string) (*models.License, error) {
	normalized, err := normalizer.Normalize(newDomain)
	if err != nil {
		return nil, ErrInvalidDomain
	}

	license, err := s.repo.Transfer(id, normalized, newDomain)
	if err != nil {
		if errors.Is(err, repository.ErrTransferLimitReached) {
			return nil, ErrTransferLimitExceeded
		}
		return nil, s.mapError(id, err)
	}
	return license, nil
}

func (s *Service) transition(id uint, from []string, to string) (*models.License, error) {
	if err := s.repo.UpdateStatusFrom(id, from, to); err != nil {
		return nil, s.mapError(id, err)
	}
	return s.repo.GetByID(id)
}

// mapError turns repository outcomes into the typed taxonomy. A guard
// conflict on a missing license is reported as not-found, not as an invalid
// transition.
func (s *Service) mapError(id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, repository.ErrTransitionConflict) {
		if _, lookupErr := s.repo.GetByID(id); errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return err
}
