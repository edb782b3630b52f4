package jobqueue

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/metrics/counter"
)

// processCheckLogJob persists one validation audit record. Failures bubble
// up so the queue's retry machinery delivers the row at least once; the
// check-stat side effects stay best-effort.
func (q *Queue) processCheckLogJob(job *Job) error {
	payload, err := CheckLogJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid check log payload: %w", err)
	}

	repos := repository.GetGlobalRepositories()

	entry := &models.LicenseCheckLog{
		LicenseID:    payload.LicenseID,
		Domain:       payload.Domain,
		IsValid:      payload.IsValid,
		CheckType:    payload.CheckType,
		IPAddress:    payload.IPAddress,
		UserAgent:    payload.UserAgent,
		ResponseData: payload.ResponseData,
		CheckedAt:    payload.CheckedAt,
	}
	if err := repos.CheckLog.Create(entry); err != nil {
		return fmt.Errorf("check log insert: %w", err)
	}

	if payload.LicenseID != nil && payload.BumpStats {
		// check_count goes through the buffered counter; only the last-check
		// metadata is written here. Neither may fail the job once the audit
		// row is in.
		if err := counter.AddLicenseCheck(*payload.LicenseID); err != nil {
			log.Errorf("[JobQueue] check counter for license %d: %v", *payload.LicenseID, err)
		}
		if err := repos.License.TouchLastCheck(*payload.LicenseID, payload.CheckedAt, payload.IPAddress); err != nil {
			log.Errorf("[JobQueue] last-check update for license %d: %v", *payload.LicenseID, err)
		}
	}

	return nil
}
