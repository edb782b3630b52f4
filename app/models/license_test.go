package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLicenseKey_Format(t *testing.T) {
	t.Parallel()

	key, err := GenerateLicenseKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(key) != 23 {
		t.Fatalf("expected fixed key length 23, got %d (%s)", len(key), key)
	}
	if !strings.HasPrefix(key, "LIC-") {
		t.Fatalf("expected LIC- prefix, got %s", key)
	}

	parts := strings.Split(key, "-")
	if len(parts) != 5 {
		t.Fatalf("expected 4 groups after prefix, got %v", parts)
	}
	for _, group := range parts[1:] {
		if len(group) != 4 {
			t.Fatalf("expected group length 4, got %q", group)
		}
		for i := 0; i < len(group); i++ {
			if strings.IndexByte(licenseKeyAlphabet, group[i]) == -1 {
				t.Fatalf("key contains invalid character %q", group[i])
			}
		}
	}
}

func TestGenerateLicenseKey_UniqueWithinSmallBatch(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key, err := GenerateLicenseKey()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, exists := seen[key]; exists {
			t.Fatalf("duplicate key generated in small batch: %s", key)
		}
		seen[key] = struct{}{}
	}
}

func TestEffectiveState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	grace := 7 * 24 * time.Hour
	future := now.AddDate(0, 0, 30)
	sixDaysPast := now.AddDate(0, 0, -6)
	eightDaysPast := now.AddDate(0, 0, -8)

	tests := []struct {
		name      string
		status    string
		expiresAt *time.Time
		want      string
	}{
		{name: "active with future expiry", status: STATUS_ACTIVE, expiresAt: &future, want: STATUS_ACTIVE},
		{name: "lifetime never expires", status: STATUS_ACTIVE, expiresAt: nil, want: STATUS_ACTIVE},
		{name: "inside grace window", status: STATUS_ACTIVE, expiresAt: &sixDaysPast, want: STATE_GRACE},
		{name: "past grace window", status: STATUS_ACTIVE, expiresAt: &eightDaysPast, want: STATUS_EXPIRED},
		{name: "suspended wins over future expiry", status: STATUS_SUSPENDED, expiresAt: &future, want: STATUS_SUSPENDED},
		{name: "suspended wins over grace", status: STATUS_SUSPENDED, expiresAt: &sixDaysPast, want: STATUS_SUSPENDED},
		{name: "cancelled is terminal", status: STATUS_CANCELLED, expiresAt: &future, want: STATUS_CANCELLED},
		{name: "stale expired status with future expiry computes live", status: STATUS_EXPIRED, expiresAt: &future, want: STATUS_ACTIVE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &License{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, l.EffectiveState(now, grace))
		})
	}
}

func TestNewLicense_LifetimeExpiryExclusive(t *testing.T) {
	t.Parallel()

	// expires_at is null exactly for lifetime licenses.
	future := time.Now().AddDate(1, 0, 0)
	_, err := NewLicense(1, "example.com", "example.com", "Widget", TYPE_LIFETIME, &future)
	assert.Error(t, err)

	_, err = NewLicense(1, "example.com", "example.com", "Widget", TYPE_YEARLY, nil)
	assert.Error(t, err)

	l, err := NewLicense(1, "example.com", "example.com", "Widget", TYPE_LIFETIME, nil)
	if assert.NoError(t, err) {
		assert.True(t, l.IsLifetime())
	}

	l, err = NewLicense(1, "example.com", "example.com", "Widget", TYPE_YEARLY, &future)
	if assert.NoError(t, err) {
		assert.False(t, l.IsLifetime())
	}
}

func TestSweepCutoff_NeverCoversGraceWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	grace := 7 * 24 * time.Hour
	cutoff := SweepCutoff(now, grace)

	// Expired six days ago: still in grace, the sweep must leave the stored
	// status alone so the active-only domain lookup keeps resolving it.
	inGrace := now.AddDate(0, 0, -6)
	assert.True(t, inGrace.After(cutoff))
	l := &License{Status: STATUS_ACTIVE, ExpiresAt: &inGrace}
	assert.Equal(t, STATE_GRACE, l.EffectiveState(now, grace))

	// Expired eight days ago: grace elapsed, eligible for denormalization.
	pastGrace := now.AddDate(0, 0, -8)
	assert.True(t, pastGrace.Before(cutoff))
	l = &License{Status: STATUS_ACTIVE, ExpiresAt: &pastGrace}
	assert.Equal(t, STATUS_EXPIRED, l.EffectiveState(now, grace))
}

func TestDaysRemaining(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	lifetime := &License{Type: TYPE_LIFETIME}
	assert.Nil(t, lifetime.DaysRemaining(now))

	in10 := now.AddDate(0, 0, 10)
	l := &License{ExpiresAt: &in10}
	days := l.DaysRemaining(now)
	if assert.NotNil(t, days) {
		assert.Equal(t, 10, *days)
	}

	past := now.AddDate(0, 0, -3)
	l = &License{ExpiresAt: &past}
	days = l.DaysRemaining(now)
	if assert.NotNil(t, days) {
		assert.Equal(t, -3, *days)
	}
}

func TestNextExpiry(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	trial := &License{Type: TYPE_TRIAL}
	assert.Equal(t, from.AddDate(0, 0, TrialPeriodDays), *trial.NextExpiry(from))

	monthly := &License{Type: TYPE_MONTHLY}
	assert.Equal(t, from.AddDate(0, 1, 0), *monthly.NextExpiry(from))

	yearly := &License{Type: TYPE_YEARLY}
	assert.Equal(t, from.AddDate(1, 0, 0), *yearly.NextExpiry(from))

	lifetime := &License{Type: TYPE_LIFETIME}
	assert.Nil(t, lifetime.NextExpiry(from))
}

func TestTransitionGuards(t *testing.T) {
	t.Parallel()

	active := &License{Status: STATUS_ACTIVE, Type: TYPE_YEARLY}
	assert.True(t, active.CanRenew())
	assert.True(t, active.CanSuspend())
	assert.False(t, active.CanActivate())
	assert.True(t, active.CanCancel())

	suspended := &License{Status: STATUS_SUSPENDED}
	assert.False(t, suspended.CanRenew())
	assert.False(t, suspended.CanSuspend())
	assert.True(t, suspended.CanActivate())
	assert.True(t, suspended.CanCancel())

	expired := &License{Status: STATUS_EXPIRED, Type: TYPE_MONTHLY}
	assert.True(t, expired.CanRenew())
	assert.False(t, expired.CanSuspend())

	cancelled := &License{Status: STATUS_CANCELLED, Type: TYPE_YEARLY}
	assert.False(t, cancelled.CanRenew())
	assert.False(t, cancelled.CanSuspend())
	assert.False(t, cancelled.CanActivate())
	assert.False(t, cancelled.CanCancel())

	lifetime := &License{Status: STATUS_ACTIVE, Type: TYPE_LIFETIME}
	assert.False(t, lifetime.CanRenew())
}

func TestCanTransfer(t *testing.T) {
	t.Parallel()

	l := &License{TransferCount: 2, MaxTransfers: 3}
	assert.True(t, l.CanTransfer())

	l.TransferCount = 3
	assert.False(t, l.CanTransfer())
}
