package jobqueue

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"

	"github.com/DragosMatei/KeyGate/app/models"
	"github.com/DragosMatei/KeyGate/app/repository"
	"github.com/DragosMatei/KeyGate/internal/pkg/validation"
)

// CheckLogSink implements validation.Recorder on top of the job queue. The
// verdict response never waits for the audit write; when the queue is down
// the sink falls back to a synchronous insert so no attempt goes unrecorded.
type CheckLogSink struct {
	queue *Queue
}

func NewCheckLogSink(queue *Queue) *CheckLogSink {
	return &CheckLogSink{queue: queue}
}

// Record enqueues the audit side effects of one verdict.
func (s *CheckLogSink) Record(result validation.Result, reqCtx validation.RequestContext) {
	payload := buildCheckLogPayload(result, reqCtx)

	if _, err := s.queue.EnqueueJob(JobTypeCheckLog, payload.ToMap()); err != nil {
		log.Errorf("[CheckLogSink] enqueue failed, writing synchronously: %v", err)
		s.writeSynchronously(payload)
	}
}

func (s *CheckLogSink) writeSynchronously(payload CheckLogJobPayload) {
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
		log.Errorf("[CheckLogSink] synchronous check log insert failed: %v", err)
	}

	if payload.LicenseID != nil && payload.BumpStats {
		// Single atomic UPDATE covers counter and metadata when the buffered
		// counter path is unavailable anyway.
		if err := repos.License.BumpCheckStats(*payload.LicenseID, payload.CheckedAt, payload.IPAddress); err != nil {
			log.Errorf("[CheckLogSink] check stats update for license %d failed: %v", *payload.LicenseID, err)
		}
	}
}

func buildCheckLogPayload(result validation.Result, reqCtx validation.RequestContext) CheckLogJobPayload {
	detail := map[string]interface{}{
		"valid":   result.Valid,
		"code":    string(result.Status),
		"message": result.Message,
	}
	if result.DaysRemaining != nil {
		detail["days_until_expiration"] = *result.DaysRemaining
	}
	responseData, err := json.Marshal(detail)
	if err != nil {
		responseData = []byte("{}")
	}

	checkType := reqCtx.CheckType
	if checkType == "" {
		checkType = models.CHECK_TYPE_API
	}

	payload := CheckLogJobPayload{
		Domain:       result.RawDomain,
		IsValid:      result.Valid,
		CheckType:    checkType,
		IPAddress:    reqCtx.IP,
		UserAgent:    reqCtx.UserAgent,
		ResponseData: string(responseData),
		CheckedAt:    result.CheckedAt,
	}
	if result.License != nil {
		id := result.License.ID
		payload.LicenseID = &id
		payload.BumpStats = true
	}
	return payload
}
