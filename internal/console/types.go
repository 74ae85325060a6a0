package console

import (
	"time"

	"github.com/Mutter0815/BotDispatch/internal/store"
)

type ScheduleExpressionReq struct {
	Kind     string `json:"kind"     binding:"required,oneof=manual daily weekly custom"`
	Time     string `json:"time"`
	Weekdays []int  `json:"weekdays" binding:"omitempty,dive,min=0,max=6"`
	// Original is the stored expression; kept as is for custom schedules.
	Original string `json:"original"`
}

type ScheduleExpressionResp struct {
	Expression  string     `json:"expression"`
	Description string     `json:"description"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

type ScheduleSpecResp struct {
	Kind        string     `json:"kind"`
	Time        string     `json:"time"`
	Weekdays    []int      `json:"weekdays"`
	Editable    bool       `json:"editable"`
	Description string     `json:"description"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

// Targets accepts stored tokens, free text, or both; text is appended.
type ResolveTargetsReq struct {
	Targets []string `json:"targets"`
	Text    string   `json:"text"`
}

type ResolveTargetsResp struct {
	Addresses []string `json:"addresses"`
	Count     int      `json:"count"`
}

type DispatchReq struct {
	Account string   `json:"account" binding:"required"`
	Targets []string `json:"targets"`
	Text    string   `json:"text"`
	Message string   `json:"message" binding:"required"`
}

type TriggerResp struct {
	JobID string `json:"job_id"`
	BotID string `json:"bot_id"`
}

type RunDetails struct {
	store.RunRow
	Stats    store.RunStats       `json:"stats"`
	Failures []store.RecipientRow `json:"failures"`
}
