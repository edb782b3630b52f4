package validation

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/internal/pkg/normalizer"
)

// Status is the machine-readable verdict code of one validation attempt.
type Status string

const (
	StatusValid          Status = "VALID"
	StatusValidGrace     Status = "VALID_GRACE"
	StatusExpired        Status = "EXPIRED"
	StatusSuspended      Status = "SUSPENDED"
	StatusCancelled      Status = "CANCELLED"
	StatusNotFound       Status = "NOT_FOUND"
	StatusInvalidDomain  Status = "INVALID_DOMAIN"
	StatusDomainMismatch Status = "DOMAIN_MISMATCH"
)

// ErrStoreUnavailable marks an infrastructure failure during lookup. It is
// deliberately distinct from a NotFound verdict: "no license" is a business
// outcome, an unreachable store is not.
var ErrStoreUnavailable = errors.New("license store unavailable")

// Config carries the engine thresholds, injected at construction so tests
// can vary them without ambient lookups.
type Config struct {
	GraceDays int
}

// DefaultConfig returns the production defaults (7 day grace window).
func DefaultConfig() Config {
	return Config{GraceDays: 7}
}

// RequestContext is the caller context of one validation attempt.
type RequestContext struct {
	IP        string
	UserAgent string
	CheckType string
}

// Result is the verdict of one validation attempt.
type Result struct {
	Valid         bool
	Status        Status
	Message       string
	DaysRemaining *int
	License       *models.License
	RawDomain     string
	CheckedAt     time.Time
}

// LicenseFinder is the read surface the engine needs from the store.
type LicenseFinder interface {
	GetByKey(key string) (*models.License, error)
	GetActiveByDomain(domain string) (*models.License, error)
}

// Recorder consumes the audit side effects of a verdict: the check-log row
// and the check-count bump. Implementations must be best-effort from the
// engine's point of view and must never fail the verdict.
type Recorder interface {
	Record(result Result, reqCtx RequestContext)
}

// Engine applies normalization, expiration/grace rules and domain matching
// to produce a verdict. It never mutates license state itself.
type Engine struct {
	cfg      Config
	finder   LicenseFinder
	recorder Recorder
	now      func() time.Time
}

func NewEngine(cfg Config, finder LicenseFinder, recorder Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		finder:   finder,
		recorder: recorder,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Test helper.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Validate produces a verdict for a license key and/or domain. Every
// business outcome, valid or not, is recorded through the Recorder. Only an
// unreachable store returns an error, wrapped in ErrStoreUnavailable.
func (e *Engine) Validate(reqCtx RequestContext, licenseKey, domain string) (Result, error) {
	now := e.now()

	normalized, err := normalizer.Normalize(domain)
	if err != nil {
		return e.finish(Result{
			Status:    StatusInvalidDomain,
			Message:   "The submitted domain is not a valid domain name.",
			RawDomain: domain,
			CheckedAt: now,
		}, reqCtx), nil
	}

	license, err := e.lookup(licenseKey, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return e.finish(Result{
				Status:    StatusNotFound,
				Message:   "No license found for this key or domain.",
				RawDomain: domain,
				CheckedAt: now,
			}, reqCtx), nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := Result{
		License:       license,
		RawDomain:     domain,
		CheckedAt:     now,
		DaysRemaining: license.DaysRemaining(now),
	}

	grace := time.Duration(e.cfg.GraceDays) * 24 * time.Hour
	state := license.EffectiveState(now, grace)

	// Stored-status invalidation outranks time-based grace; both outrank the
	// domain comparison.
	switch state {
	case models.STATUS_SUSPENDED:
		result.Status = StatusSuspended
		result.Message = "This license is suspended."
		return e.finish(result, reqCtx), nil
	case models.STATUS_CANCELLED:
		result.Status = StatusCancelled
		result.Message = "This license has been cancelled."
		return e.finish(result, reqCtx), nil
	case models.STATUS_EXPIRED:
		result.Status = StatusExpired
		result.Message = fmt.Sprintf("This license expired on %s.", license.ExpiresAt.Format("2006-01-02"))
		return e.finish(result, reqCtx), nil
	}

	if !normalizer.Matches(license.Domain, normalized) {
		result.Status = StatusDomainMismatch
		result.Message = fmt.Sprintf("This license is registered for %s, not %s.", license.Domain, normalized)
		return e.finish(result, reqCtx), nil
	}

	if state == models.STATE_GRACE {
		result.Valid = true
		result.Status = StatusValidGrace
		result.Message = fmt.Sprintf("License expired on %s but is within the grace period. Please renew.", license.ExpiresAt.Format("2006-01-02"))
		return e.finish(result, reqCtx), nil
	}

	result.Valid = true
	result.Status = StatusValid
	if license.IsLifetime() {
		result.Message = "License is valid."
	} else {
		result.Message = fmt.Sprintf("License is valid until %s.", license.ExpiresAt.Format("2006-01-02"))
	}
	return e.finish(result, reqCtx), nil
}

// lookupRetries bounds the internal retry on infrastructure failures; a
// NotFound result is final immediately.
const lookupRetries = 2

func (e *Engine) lookup(licenseKey, normalizedDomain string) (*models.License, error) {
	var license *models.License
	var err error
	for attempt := 0; ; attempt++ {
		if licenseKey != "" {
			license, err = e.finder.GetByKey(licenseKey)
		} else {
			license, err = e.finder.GetActiveByDomain(normalizedDomain)
		}
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) || attempt == lookupRetries {
			return license, err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
}

func (e *Engine) finish(result Result, reqCtx RequestContext) Result {
	if e.recorder != nil {
		e.recorder.Record(result, reqCtx)
	}
	return result
}
