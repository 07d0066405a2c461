package notification

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stanstork/safeme-sync/internal/metrics"
	"github.com/stanstork/safeme-sync/internal/models"
)

// DispatchResult aggregates one alert's email fan-out.
type DispatchResult struct {
	Recipients   int  `json:"recipients"`
	EmailsSent   int  `json:"emails_sent"`
	EmailsFailed int  `json:"emails_failed"`
	Delivered    bool `json:"delivered"`
}

// Dispatcher emails every contact in an alert's frozen snapshot.
type Dispatcher struct {
	sender   EmailSender
	provider string
	wait     time.Duration
	logger   zerolog.Logger
}

func NewDispatcher(sender EmailSender, provider string, wait time.Duration, logger zerolog.Logger) *Dispatcher {
	if wait <= 0 {
		wait = 20 * time.Second
	}
	return &Dispatcher{
		sender:   sender,
		provider: provider,
		wait:     wait,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends one email per contact with an address, concurrently, and
// waits at most the configured bound for them to settle. Sends still in
// flight when the bound expires count as failed. An alert without any
// email-bearing contact is trivially delivered. The only error is a
// malformed contact snapshot.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.AlertRecord) (DispatchResult, error) {
	entries, err := models.ParseContactSnapshot(rec.ContactsJSON)
	if err != nil {
		return DispatchResult{}, err
	}

	recipients := models.EmailRecipients(entries)
	if len(recipients) == 0 {
		d.logger.Info().Str("alert_id", rec.AlertID).Msg("No contacts with email, nothing to dispatch")
		return DispatchResult{Delivered: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.wait)
	defer cancel()

	body := ComposeAlertMessage(rec)
	var sent atomic.Int64

	var g errgroup.Group
	for _, contact := range recipients {
		msg := buildEmailMessage(rec, contact, body)
		g.Go(func() error {
			if err := d.sender.Send(ctx, msg); err != nil {
				d.logger.Warn().
					Err(err).
					Str("alert_id", rec.AlertID).
					Str("to_email", msg.ToEmail).
					Msg("Failed to send alert email")
				return nil
			}
			sent.Add(1)
			d.logger.Info().
				Str("alert_id", rec.AlertID).
				Str("to_email", msg.ToEmail).
				Msg("Alert email sent")
			return nil
		})
	}

	settled := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(settled)
	}()

	select {
	case <-settled:
	case <-ctx.Done():
		d.logger.Warn().Str("alert_id", rec.AlertID).Dur("wait", d.wait).Msg("Timed out waiting for alert emails")
	}

	res := DispatchResult{Recipients: len(recipients), EmailsSent: int(sent.Load())}
	res.EmailsFailed = res.Recipients - res.EmailsSent
	res.Delivered = res.EmailsSent > 0

	metrics.Emails.WithLabelValues(d.provider, "sent").Add(float64(res.EmailsSent))
	metrics.Emails.WithLabelValues(d.provider, "failed").Add(float64(res.EmailsFailed))

	d.logger.Info().
		Str("alert_id", rec.AlertID).
		Int("sent", res.EmailsSent).
		Int("failed", res.EmailsFailed).
		Msg("Alert dispatch finished")
	return res, nil
}
