package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/config"
)

// EmailJSSender posts alert emails to the EmailJS REST endpoint.
type EmailJSSender struct {
	endpoint   string
	serviceID  string
	templateID string
	publicKey  string
	origin     string
	client     *http.Client
	logger     zerolog.Logger
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

func NewEmailJSSender(cfg config.EmailConfig, logger zerolog.Logger) (*EmailJSSender, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required for emailjs sender")
	}
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		return nil, fmt.Errorf("service_id, template_id and public_key are required for emailjs sender")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EmailJSSender{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		serviceID:  cfg.ServiceID,
		templateID: cfg.TemplateID,
		publicKey:  cfg.PublicKey,
		origin:     cfg.Origin,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("sender", "emailjs").Logger(),
	}, nil
}

func (s *EmailJSSender) Send(ctx context.Context, msg EmailMessage) error {
	params := map[string]string{
		"to_email":      msg.ToEmail,
		"contact_name":  msg.ContactName,
		"alert_message": msg.Body,
	}
	if msg.LocationCoordinates != "" {
		params["location_address"] = msg.LocationAddress
		params["location_coordinates"] = msg.LocationCoordinates
		params["google_maps_link"] = msg.MapsLink
	}

	payload, err := json.Marshal(emailJSRequest{
		ServiceID:      s.serviceID,
		TemplateID:     s.templateID,
		UserID:         s.publicKey,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("marshal emailjs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.publicKey)
	if s.origin != "" {
		req.Header.Set("Origin", s.origin)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &EmailDeliveryError{ToEmail: msg.ToEmail, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &EmailDeliveryError{
			ToEmail: msg.ToEmail,
			Err:     fmt.Errorf("emailjs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug().Str("to_email", msg.ToEmail).Msg("email accepted by emailjs")
	return nil
}

func (s *EmailJSSender) String() string {
	return "EmailJSSender"
}
