package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeCheckLog persists one validation audit record.
	JobTypeCheckLog JobType = "check_log"
	// JobTypeLogRetention trims aged audit records in bounded batches.
	JobTypeLogRetention JobType = "log_retention"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// CheckLogJobPayload carries one audit record from the validation hot path
// to the sink worker.
type CheckLogJobPayload struct {
	LicenseID    *uint     `json:"license_id,omitempty"`
	Domain       string    `json:"domain"`
	IsValid      bool      `json:"is_valid"`
	CheckType    string    `json:"check_type"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	ResponseData string    `json:"response_data"`
	CheckedAt    time.Time `json:"checked_at"`
	// BumpStats marks verdicts that should also refresh the license's
	// check counters and last-check metadata.
	BumpStats bool `json:"bump_stats"`
}

// ToMap converts the payload to a map for storage
func (p CheckLogJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"domain":        p.Domain,
		"is_valid":      p.IsValid,
		"check_type":    p.CheckType,
		"ip_address":    p.IPAddress,
		"user_agent":    p.UserAgent,
		"response_data": p.ResponseData,
		"checked_at":    p.CheckedAt.Format(time.RFC3339Nano),
		"bump_stats":    p.BumpStats,
	}
	if p.LicenseID != nil {
		m["license_id"] = *p.LicenseID
	}
	return m
}

// CheckLogJobPayloadFromMap creates a payload from a map
func CheckLogJobPayloadFromMap(data map[string]interface{}) (*CheckLogJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload CheckLogJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// LogRetentionJobPayload describes one retention run. The cutoff is fixed at
// enqueue time so retries operate on the same boundary.
type LogRetentionJobPayload struct {
	Cutoff    time.Time `json:"cutoff"`
	BatchSize int       `json:"batch_size"`
}

// ToMap converts the payload to a map for storage
func (p LogRetentionJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"cutoff":     p.Cutoff.Format(time.RFC3339Nano),
		"batch_size": p.BatchSize,
	}
}

// LogRetentionJobPayloadFromMap creates a payload from a map
func LogRetentionJobPayloadFromMap(data map[string]interface{}) (*LogRetentionJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload LogRetentionJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
