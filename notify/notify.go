// Package notify implements the best-effort transition hook.
//
// Notifiers never retry and never block a run for long: the runner logs
// their errors and moves on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/warp/rotation-engine/generic"
)

// postTimeout caps a single webhook call.
const postTimeout = 10 * time.Second

// =============================================================================
// SLACK - Incoming webhook
// =============================================================================

// Slack posts one attachment per transition to an incoming webhook.
type Slack struct {
	WebhookURL string
	Channel    string

	// post is swapped in tests.
	post func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack returns a webhook notifier. Channel may be empty to use the
// webhook's default channel.
func NewSlack(webhookURL, channel string) *Slack {
	return &Slack{WebhookURL: webhookURL, Channel: channel, post: slackapi.PostWebhookContext}
}

func (s *Slack) NotifyTransition(ctx context.Context, workerID generic.WorkerID, from, to generic.Status, date generic.Date) error {
	if s.WebhookURL == "" {
		return errors.New("slack: webhook url not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	if err := s.post(ctx, s.WebhookURL, transitionMessage(s.Channel, workerID, from, to, date)); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

func transitionMessage(channel string, workerID generic.WorkerID, from, to generic.Status, date generic.Date) *slackapi.WebhookMessage {
	title := fmt.Sprintf("%s rotated %s", workerID, to)
	return &slackapi.WebhookMessage{
		Channel: channel,
		Text:    fmt.Sprintf("%s: %s -> %s on %s", workerID, from, to, date),
		Attachments: []slackapi.Attachment{{
			Title:    title,
			Fallback: title,
			Color:    statusColor(to),
			Fields: []slackapi.AttachmentField{
				{Title: "Worker", Value: string(workerID), Short: true},
				{Title: "Effective", Value: date.String(), Short: true},
				{Title: "From", Value: string(from), Short: true},
				{Title: "To", Value: string(to), Short: true},
			},
		}},
	}
}

func statusColor(s generic.Status) string {
	switch s {
	case generic.StatusAboard:
		return "#2eb886"
	case generic.StatusHome:
		return "#439fe0"
	default:
		return "#a0a0a0"
	}
}

// =============================================================================
// LOG - Structured log line per transition
// =============================================================================

// Log writes transitions to a slog.Logger.
type Log struct {
	Logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger.With("component", "notify")}
}

func (l *Log) NotifyTransition(ctx context.Context, workerID generic.WorkerID, from, to generic.Status, date generic.Date) error {
	l.Logger.InfoContext(ctx, "rotation transition",
		"worker", workerID, "from", from, "to", to, "effective", date.String())
	return nil
}

// =============================================================================
// MULTI - Fan out to several notifiers
// =============================================================================

// Multi calls every notifier and joins their errors.
type Multi []generic.Notifier

func (m Multi) NotifyTransition(ctx context.Context, workerID generic.WorkerID, from, to generic.Status, date generic.Date) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyTransition(ctx, workerID, from, to, date); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
