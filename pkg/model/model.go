package model

import (
	"time"

	"github.com/google/uuid"
)

// TriggerJob asks a dispatch worker to run one bot. ID stays the same
// across retries of the same request.
type TriggerJob struct {
	ID          string    `json:"id"`
	BotID       string    `json:"bot_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewTriggerJob(botID, trigger string, now time.Time) TriggerJob {
	return TriggerJob{
		ID:          uuid.NewString(),
		BotID:       botID,
		Trigger:     trigger,
		RequestedAt: now.UTC(),
	}
}
