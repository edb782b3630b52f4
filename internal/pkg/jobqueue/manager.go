package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/env"
	metrics "github.com/DragosMatei/KeyGate/internal/pkg/metrics/counter"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue              *Queue
	counterFlushTicker *time.Ticker
	sweepTicker        *time.Ticker
	retentionTicker    *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(env.GetEnvInt("JOB_QUEUE_WORKERS", 5)),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Flush buffered check counters (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	// Expiration sweep: denormalizes past-due active licenses to expired.
	// Validation computes liveness itself, so the cadence is an ops choice.
	sweepInterval := time.Duration(env.GetEnvInt("EXPIRATION_SWEEP_MINUTES", 60)) * time.Minute
	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.expirationSweepWorker()

	// Check log retention, once per day by default
	retentionInterval := time.Duration(env.GetEnvInt("RETENTION_SWEEP_HOURS", 24)) * time.Hour
	m.retentionTicker = time.NewTicker(retentionInterval)
	m.wg.Add(1)
	go m.retentionWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.retentionTicker != nil {
		m.retentionTicker.Stop()
	}

	close(m.stopCh)
	m.wg.Wait()

	m.queue.Stop()
	m.running = false

	log.Info("[JobQueue Manager] Stopped")
}

// counterFlushWorker periodically drains the buffered check counters to the database
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			// Final flush so buffered counts survive a clean shutdown
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Final counter flush failed: %v", err)
			}
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush failed: %v", err)
			}
		}
	}
}

// expirationSweepWorker flips active licenses past due plus grace to expired
func (m *Manager) expirationSweepWorker() {
	defer m.wg.Done()

	grace := time.Duration(validation.DefaultConfig().GraceDays) * 24 * time.Hour

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.sweepTicker.C:
			cutoff := models.SweepCutoff(time.Now(), grace)
			flipped, err := repository.GetGlobalRepositories().License.SweepExpired(cutoff)
			if err != nil {
				log.Errorf("[JobQueue Manager] Expiration sweep failed: %v", err)
				continue
			}
			if flipped > 0 {
				// The status column is the observable fact external
				// notifiers poll for newly expired licenses.
				log.Infof("[JobQueue Manager] Expiration sweep marked %d licenses expired", flipped)
			}
		}
	}
}

// retentionWorker enqueues a bounded retention job for aged check logs
func (m *Manager) retentionWorker() {
	defer m.wg.Done()

	retentionDays := env.GetEnvInt("CHECK_LOG_RETENTION_DAYS", 90)

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.retentionTicker.C:
			payload := LogRetentionJobPayload{
				Cutoff:    time.Now().AddDate(0, 0, -retentionDays),
				BatchSize: env.GetEnvInt("CHECK_LOG_RETENTION_BATCH", defaultRetentionBatchSize),
			}
			if _, err := m.queue.EnqueueJob(JobTypeLogRetention, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue retention job: %v", err)
			}
		}
	}
}

