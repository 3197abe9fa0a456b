package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/email"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// SecurityEventsChannel is the Redis pub/sub channel every raised event is
// published on
const SecurityEventsChannel = "secmon:security_events"

// RedisEventPublisher publishes events on SecurityEventsChannel
type RedisEventPublisher struct {
	rdb *database.Redis
}

// NewRedisEventPublisher creates a new RedisEventPublisher
func NewRedisEventPublisher(rdb *database.Redis) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb}
}

// Name identifies the publisher in logs
func (p *RedisEventPublisher) Name() string {
	return "redis"
}

// Publish sends ev as JSON to the channel
func (p *RedisEventPublisher) Publish(ctx context.Context, ev *model.SecurityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}
	if err := p.rdb.Publish(ctx, SecurityEventsChannel, data); err != nil {
		return fmt.Errorf("failed to publish security event: %w", err)
	}
	return nil
}

// EmailAlerter mails every event at or above a minimum severity to a fixed
// list of recipients
type EmailAlerter struct {
	sender      email.Sender
	recipients  []string
	minSeverity model.Severity
	appName     string
	log         *logger.Logger
}

// NewEmailAlerter creates a new EmailAlerter
func NewEmailAlerter(sender email.Sender, recipients []string, minSeverity model.Severity, appName string, log *logger.Logger) *EmailAlerter {
	if !minSeverity.Valid() {
		minSeverity = model.SeverityCritical
	}
	return &EmailAlerter{
		sender:      sender,
		recipients:  recipients,
		minSeverity: minSeverity,
		appName:     appName,
		log:         log.WithComponent("email_alerter"),
	}
}

// Name identifies the publisher in logs
func (a *EmailAlerter) Name() string {
	return "email"
}

// Publish sends one alert per recipient when ev is severe enough
func (a *EmailAlerter) Publish(ctx context.Context, ev *model.SecurityEvent) error {
	if !ev.Severity.AtLeast(a.minSeverity) {
		return nil
	}

	subject := email.SecurityAlertSubject(ev, a.appName)
	htmlBody := email.SecurityAlertHTML(ev, a.appName)
	textBody := email.SecurityAlertText(ev, a.appName)

	var errs []error
	for _, to := range a.recipients {
		err := a.sender.Send(ctx, email.Message{
			To:       to,
			Subject:  subject,
			HTMLBody: htmlBody,
			TextBody: textBody,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("alert to %s: %w", to, err))
			continue
		}
		a.log.Info().Str("event_id", ev.ID).Str("to", to).Msg("security alert sent")
	}
	return errors.Join(errs...)
}
