package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Mutter0815/BotDispatch/internal/schedule"
	"github.com/Mutter0815/BotDispatch/internal/target"
)

var (
	ErrNotFound = errors.New("bot not found")
	ErrInactive = errors.New("bot is not active")
)

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerSendNow  = "send_now"
)

// Bot mirrors the bot record owned by the backend.
type Bot struct {
	ID              string   `json:"id"               yaml:"id"`
	SessionID       string   `json:"session_id"       yaml:"session_id"`
	Name            string   `json:"name"             yaml:"name"`
	MessageTemplate string   `json:"message_template" yaml:"message_template"`
	TargetNumbers   []string `json:"target_numbers"   yaml:"target_numbers"`
	SchedulePattern *string  `json:"schedule_pattern" yaml:"schedule_pattern"`
	IsActive        bool     `json:"is_active"        yaml:"is_active"`
}

func (b Bot) Targets() target.List { return target.FromTokens(b.TargetNumbers) }

// Schedule returns the stored recurrence expression, "" for manual bots.
func (b Bot) Schedule() string {
	if b.SchedulePattern == nil {
		return ""
	}
	return strings.TrimSpace(*b.SchedulePattern)
}

func (b Bot) ScheduleSpec() schedule.Spec { return schedule.FromExpression(b.Schedule()) }

// Store is the read side of the backend bot API.
type Store interface {
	GetBot(ctx context.Context, id string) (Bot, error)
	ListBots(ctx context.Context) ([]Bot, error)
}

// Render fills the template variables offered by the bot form:
// {date}, {time}, {datetime} and {day}.
func Render(tmpl string, now time.Time) string {
	r := strings.NewReplacer(
		"{datetime}", now.Format("2006-01-02 15:04"),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("15:04"),
		"{day}", now.Weekday().String(),
	)
	return r.Replace(tmpl)
}
