package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFXRatesSync is the task type for one fetch, archive and load run.
	TaskFXRatesSync = "fx:rates:sync"
)

// Trigger sources recorded on sync payloads.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerHTTP   = "http"
)

// FXSyncPayload describes what started a sync run.
type FXSyncPayload struct {
	Trigger string `json:"trigger"`
}

// NewFXSyncTask constructs an Asynq task for a sync run. Asynq retries are
// disabled; a failed run waits for the next trigger.
func NewFXSyncTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		return nil, errors.New("jobs: trigger is required")
	}
	data, err := json.Marshal(FXSyncPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFXRatesSync, data,
		asynq.MaxRetry(0),
		asynq.Queue(QueueDefault),
		asynq.Timeout(5*time.Minute),
	), nil
}

// DecodeFXSyncPayload parses a sync task payload. Malformed payloads skip retry.
func DecodeFXSyncPayload(t *asynq.Task) (FXSyncPayload, error) {
	var payload FXSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return FXSyncPayload{}, errors.Join(asynq.SkipRetry, err)
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerCron
	}
	return payload, nil
}
