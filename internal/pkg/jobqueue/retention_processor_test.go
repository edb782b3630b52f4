package jobqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragosMatei/KeyGate/app/models"
)

type fakeCheckLogs struct {
	batches []int64
	err     error
	calls   int
}

func (f *fakeCheckLogs) Create(*models.LicenseCheckLog) error          { return nil }
func (f *fakeCheckLogs) GetByID(uint) (*models.LicenseCheckLog, error) { return nil, nil }
func (f *fakeCheckLogs) CountByLicense(uint) (int64, error)            { return 0, nil }
func (f *fakeCheckLogs) ListByLicense(uint, int, int) ([]models.LicenseCheckLog, error) {
	return nil, nil
}

func (f *fakeCheckLogs) DeleteOlderThan(time.Time, int) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.calls > len(f.batches) {
		return 0, nil
	}
	return f.batches[f.calls-1], nil
}

func TestRunRetention_DrainsInBatches(t *testing.T) {
	t.Parallel()

	logs := &fakeCheckLogs{batches: []int64{500, 500, 120}}
	err := runRetention(make(chan struct{}), logs, time.Now(), 500)
	require.NoError(t, err)

	// Three full/partial batches plus the empty one that ends the loop.
	assert.Equal(t, 4, logs.calls)
}

func TestRunRetention_StopChannelEndsTheRun(t *testing.T) {
	t.Parallel()

	stop := make(chan struct{})
	close(stop)

	logs := &fakeCheckLogs{batches: []int64{500, 500}}
	err := runRetention(stop, logs, time.Now(), 500)
	require.NoError(t, err)

	// Interrupted before the first batch; older rows stay for the next run.
	assert.Equal(t, 0, logs.calls)
}

func TestRunRetention_BatchErrorPropagates(t *testing.T) {
	t.Parallel()

	logs := &fakeCheckLogs{err: errors.New("deadlock")}
	err := runRetention(make(chan struct{}), logs, time.Now(), 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}
