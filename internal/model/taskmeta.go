package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus mirrors the broker-side execution status of one dispatched
// compute task, independent of the relational store's own Computation
// lifecycle.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusStarted TaskStatus = "STARTED"
	TaskStatusSuccess TaskStatus = "SUCCESS"
	TaskStatusFailure TaskStatus = "FAILURE"
	TaskStatusRevoked TaskStatus = "REVOKED"
)

// TaskMeta is the broker's outcome side table (ca_base.celery_taskmeta).
// The table name is kept verbatim as the wire contract even though
// the broker underneath is NATS, not Celery/AMQP.
type TaskMeta struct {
	ID       int64      `json:"id"`
	TaskID   uuid.UUID  `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Result   string     `json:"result,omitempty"`
	DateDone time.Time  `json:"date_done"`
	Traceback string    `json:"traceback,omitempty"`
	Name     string     `json:"name"`
	Worker   string     `json:"worker,omitempty"`
	Retries  int        `json:"retries"`
	Queue    string     `json:"queue"`
}
