package ratelimit

import (
	"fmt"
	"time"
)

const (
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	CodeLicenseRateLimitExceeded = "LICENSE_RATE_LIMIT_EXCEEDED"
	CodeIPBlocked                = "IP_BLOCKED"
)

const (
	ipKeyPrefix      = "ratelimit:ip:"
	licenseKeyPrefix = "ratelimit:key:"
	failureKeyPrefix = "ratelimit:fail:"
	blockKeyPrefix   = "ratelimit:block:"
)

// Store is the minimal counter contract the limiter needs from a cache
// backend. Increment must be atomic increment-with-TTL; a read-then-write
// implementation would reintroduce the race the limiter exists to prevent.
type Store interface {
	Increment(key string, ttl time.Duration) (int64, error)
	SetFlag(key string, ttl time.Duration) error
	HasFlag(key string) (bool, error)
	TTL(key string) (time.Duration, error)
}

// Config carries the window and escalation thresholds. Injected explicitly
// so tests can vary them deterministically.
type Config struct {
	IPLimit          int
	IPWindow         time.Duration
	KeyLimit         int
	KeyWindow        time.Duration
	FailureThreshold int
	FailureReArm     int
	FailureWindow    time.Duration
	BlockDuration    time.Duration
}

// DefaultConfig returns the production thresholds: 100 requests/h per IP,
// 1000 requests/24h per license key, hard block after 20 failures in an
// hour re-armed every 5 further failures, 10 minute block.
func DefaultConfig() Config {
	return Config{
		IPLimit:          100,
		IPWindow:         time.Hour,
		KeyLimit:         1000,
		KeyWindow:        24 * time.Hour,
		FailureThreshold: 20,
		FailureReArm:     5,
		FailureWindow:    time.Hour,
		BlockDuration:    10 * time.Minute,
	}
}

// Decision is the outcome of a limiter check. Rejections carry the machine
// code, a stable human message and the seconds until the caller may retry.
type Decision struct {
	Allowed    bool
	Code       string
	Message    string
	RetryAfter time.Duration
}

type Limiter struct {
	store Store
	cfg   Config
}

func NewLimiter(store Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// Check gates an incoming request. The hard block flag is consulted first,
// then the fixed-window IP counter, then the per-license-key counter when a
// key is present. Every call consumes a slot in the windows it passes.
func (l *Limiter) Check(ip, licenseKey string) (Decision, error) {
	blocked, err := l.store.HasFlag(blockKeyPrefix + ip)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit block lookup: %w", err)
	}
	if blocked {
		retry := l.remaining(blockKeyPrefix+ip, l.cfg.BlockDuration)
		return Decision{
			Code:       CodeIPBlocked,
			Message:    "Too many failed validation attempts. This IP is temporarily blocked.",
			RetryAfter: retry,
		}, nil
	}

	count, err := l.store.Increment(ipKeyPrefix+ip, l.cfg.IPWindow)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit ip counter: %w", err)
	}
	if count > int64(l.cfg.IPLimit) {
		retry := l.remaining(ipKeyPrefix+ip, l.cfg.IPWindow)
		return Decision{
			Code:       CodeRateLimitExceeded,
			Message:    "Rate limit exceeded. Try again later.",
			RetryAfter: retry,
		}, nil
	}

	if licenseKey != "" {
		count, err := l.store.Increment(licenseKeyPrefix+licenseKey, l.cfg.KeyWindow)
		if err != nil {
			return Decision{}, fmt.Errorf("rate limit key counter: %w", err)
		}
		if count > int64(l.cfg.KeyLimit) {
			retry := l.remaining(licenseKeyPrefix+licenseKey, l.cfg.KeyWindow)
			return Decision{
				Code:       CodeLicenseRateLimitExceeded,
				Message:    "Validation limit for this license key exceeded.",
				RetryAfter: retry,
			}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// RegisterFailure records an invalid verdict for the IP and arms the hard
// block when the escalation rule fires. Blocking is deliberately hysteretic:
// only every FailureReArm-th failure past the threshold re-arms the block,
// which controls the ban renewal cadence under sustained abuse.
func (l *Limiter) RegisterFailure(ip string) (bool, error) {
	failures, err := l.store.Increment(failureKeyPrefix+ip, l.cfg.FailureWindow)
	if err != nil {
		return false, fmt.Errorf("rate limit failure counter: %w", err)
	}

	threshold := int64(l.cfg.FailureThreshold)
	if failures <= threshold {
		return false, nil
	}
	if (failures-threshold)%int64(l.cfg.FailureReArm) != 0 {
		return false, nil
	}

	if err := l.store.SetFlag(blockKeyPrefix+ip, l.cfg.BlockDuration); err != nil {
		return false, fmt.Errorf("rate limit block flag: %w", err)
	}
	return true, nil
}

// remaining reads the key TTL for a Retry-After value, falling back to the
// full window when the backend cannot report one.
func (l *Limiter) remaining(key string, window time.Duration) time.Duration {
	ttl, err := l.store.TTL(key)
	if err != nil || ttl <= 0 {
		return window
	}
	return ttl
}
