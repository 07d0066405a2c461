package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/config"
	"github.com/stanstork/safeme-sync/internal/models"
	"github.com/stanstork/safeme-sync/internal/repository"
)

// FirebaseNotifier pushes device notifications to the user's registered
// token, or to the configured topic when the notification has no user.
type FirebaseNotifier struct {
	enabled   bool
	projectID string
	topic     string
	tokens    repository.PushTokenRepository
	logger    zerolog.Logger
}

func NewFirebaseNotifier(cfg config.PushConfig, tokens repository.PushTokenRepository, logger zerolog.Logger) *FirebaseNotifier {
	enabled := cfg.Enabled && cfg.ProjectID != ""
	return &FirebaseNotifier{
		enabled:   enabled,
		projectID: cfg.ProjectID,
		topic:     cfg.Topic,
		tokens:    tokens,
		logger:    logger.With().Str("notifier", "firebase").Logger(),
	}
}

func (n *FirebaseNotifier) Notify(ctx context.Context, notif models.Notification) error {
	if !n.enabled {
		return nil
	}

	if notif.UserID != nil && n.tokens != nil {
		token, err := n.tokens.GetPushToken(ctx, *notif.UserID)
		switch {
		case err == nil:
			n.logger.Info().
				Str("notification_id", notif.ID).
				Str("event_type", string(notif.EventType)).
				Str("user_id", *notif.UserID).
				Str("token_suffix", tokenSuffix(token)).
				Msg("firebase notification dispatched (mock)")
			return nil
		case !errors.Is(err, repository.ErrPushTokenNotFound):
			return err
		}
	}

	if n.topic == "" {
		return nil
	}
	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("topic", n.topic).
		Msg("firebase notification dispatched (mock)")
	return nil
}

func (n *FirebaseNotifier) String() string {
	if !n.enabled {
		return "FirebaseNotifier(disabled)"
	}
	return fmt.Sprintf("FirebaseNotifier(project=%s, topic=%s)", n.projectID, n.topic)
}

func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[len(token)-6:]
}
