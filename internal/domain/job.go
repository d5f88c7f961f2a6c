package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a relay job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusDone, and JobStatusError.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further transition is meaningful for this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// IsValid reports whether s is one of the known job statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// JSONMap stores an arbitrary structured payload as a JSON column.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Job represents one tracked asynchronous task relayed to the external worker.
// Created once by the submit path, mutated by callbacks, read by the stream.
type Job struct {
	ID        string      `gorm:"type:text;primaryKey" json:"id"`
	Status    JobStatus   `gorm:"type:text;index:idx_jobs_status;default:queued" json:"status"`
	Progress  int         `gorm:"default:0" json:"progress"`
	Message   string      `gorm:"type:text" json:"message"`
	Logs      StringArray `gorm:"type:text" json:"logs"`
	Result    JSONMap     `gorm:"type:text" json:"result,omitempty"`
	Error     string      `gorm:"type:text" json:"error,omitempty"`
	Payload   JSONMap     `gorm:"type:text" json:"payload,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// Clone returns a copy of the job safe to hand to another goroutine.
// Logs are copied; Result and Payload are treated as read-only after storage.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Logs = append(StringArray(nil), j.Logs...)
	return &cp
}

// JobPatch describes a partial update to a job. Nil fields are left untouched;
// AppendLogs entries are appended to the stored log sequence in order.
type JobPatch struct {
	Status     *JobStatus
	Progress   *int
	Message    *string
	Result     JSONMap
	Error      *string
	AppendLogs []string
}

// IsEmpty reports whether the patch carries no changes at all.
func (p *JobPatch) IsEmpty() bool {
	return p.Status == nil && p.Progress == nil && p.Message == nil &&
		p.Result == nil && p.Error == nil && len(p.AppendLogs) == 0
}

// ClampProgress bounds a raw progress value to the valid [0,100] range.
func ClampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
