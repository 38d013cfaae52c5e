package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeReindexTick  = "search:reindex_tick"
	TypeWelcomeEmail = "email:welcome"
)

// ReindexTickPayload is empty - the runner reads everything it needs from
// the watermark blobs.
type ReindexTickPayload struct{}

func NewReindexTickTask() *asynq.Task {
	return asynq.NewTask(TypeReindexTick, nil)
}

// WelcomeEmailPayload contains the data for a welcome email task
type WelcomeEmailPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWelcomeEmail, data, asynq.MaxRetry(3), asynq.Queue("low")), nil
}
