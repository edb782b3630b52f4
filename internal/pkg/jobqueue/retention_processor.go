package jobqueue

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/DragosMatei/KeyGate/app/repository"
)

const defaultRetentionBatchSize = 500

// processLogRetentionJob trims check logs older than the payload cutoff in
// bounded batches. Each batch commits independently, so the job can be
// interrupted between batches (shutdown, crash) without corrupting anything;
// rows left behind are older than the next scheduled run's cutoff too, so
// that run removes them.
func (q *Queue) processLogRetentionJob(job *Job) error {
	payload, err := LogRetentionJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid retention payload: %w", err)
	}

	batchSize := payload.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRetentionBatchSize
	}

	return runRetention(q.stopCh, repository.GetGlobalRepositories().CheckLog, payload.Cutoff, batchSize)
}

func runRetention(stop <-chan struct{}, logs repository.CheckLogRepository, cutoff time.Time, batchSize int) error {
	var total int64
	for {
		select {
		case <-stop:
			log.Infof("[JobQueue] Retention interrupted after %d rows; the next scheduled run removes the remainder", total)
			return nil
		default:
		}

		deleted, err := logs.DeleteOlderThan(cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("retention batch after %d rows: %w", total, err)
		}
		if deleted == 0 {
			break
		}
		total += deleted
	}

	if total > 0 {
		log.Infof("[JobQueue] Retention removed %d check logs older than %s", total, cutoff.Format("2006-01-02"))
	}
	return nil
}
