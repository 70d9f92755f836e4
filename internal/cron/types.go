// Package cron schedules recurring agent tasks. Jobs are persisted as JSON
// in the workspace and fire as system-channel inbound messages, so replies
// route back to the conversation that created the job.
package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aisbot/aisbot/pkg/models"
)

// cronParser accepts standard 5-field expressions, optional seconds, and
// descriptors like @hourly or @every 5m.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule selects either a cron expression or a fixed interval.
type Schedule struct {
	// Cron is a cron expression ("0 9 * * *") or descriptor ("@hourly").
	Cron string `json:"cron,omitempty"`

	// Every is a Go duration string ("30m"). Ignored when Cron is set.
	Every string `json:"every,omitempty"`
}

// Spec converts the schedule to the expression the runner understands.
func (s Schedule) Spec() (string, error) {
	if expr := strings.TrimSpace(s.Cron); expr != "" {
		if _, err := cronParser.Parse(expr); err != nil {
			return "", fmt.Errorf("invalid cron expression: %w", err)
		}
		return expr, nil
	}
	if every := strings.TrimSpace(s.Every); every != "" {
		d, err := time.ParseDuration(every)
		if err != nil {
			return "", fmt.Errorf("invalid interval: %w", err)
		}
		if d <= 0 {
			return "", fmt.Errorf("interval must be positive")
		}
		return "@every " + d.String(), nil
	}
	return "", fmt.Errorf("schedule requires cron or every")
}

// String renders the schedule for listings.
func (s Schedule) String() string {
	if strings.TrimSpace(s.Cron) != "" {
		return s.Cron
	}
	if strings.TrimSpace(s.Every) != "" {
		return "every " + s.Every
	}
	return "(unscheduled)"
}

// Job is one scheduled task. Channel and ChatID identify the conversation
// the job's output routes back to.
type Job struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Schedule Schedule   `json:"schedule"`
	Message  string     `json:"message"`
	Channel  string     `json:"channel"`
	ChatID   string     `json:"chat_id"`
	Enabled  bool       `json:"enabled"`
	Created  time.Time  `json:"created_at"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// Publisher delivers fired jobs to the agent as inbound messages.
// *bus.MessageBus satisfies it.
type Publisher interface {
	PublishInbound(ctx context.Context, msg *models.InboundMessage) error
}
