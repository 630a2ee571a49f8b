// Package notify dispatches the outbound registration notification. The call
// is fire-and-forget: it runs off the write path, has its own timeout, and
// its outcome is only logged.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/seibukan/gasshuku/internal/registration"
)

// requestTimeout caps the outbound call so a slow receiver cannot pile up
// goroutines.
const requestTimeout = 5 * time.Second

// Notifier announces an accepted registration.
type Notifier interface {
	RegistrationAccepted(ctx context.Context, reg registration.Registration) error
}

// Webhook posts a registration summary to a configured URL.
type Webhook struct {
	url     string
	baseURL string
	client  *http.Client
}

// NewWebhook builds a webhook notifier. An empty URL returns nil, which
// Dispatch treats as notifications disabled.
func NewWebhook(url, baseURL string) *Webhook {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &Webhook{
		url:     url,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type payload struct {
	RegistrationID string `json:"registrationId"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	CampType       string `json:"campType"`
	TotalCents     int64  `json:"totalCents"`
	Currency       string `json:"currency"`
	DetailURL      string `json:"detailUrl,omitempty"`
}

// RegistrationAccepted posts the summary. Errors are returned for logging
// only; callers must never fail a registration on them.
func (w *Webhook) RegistrationAccepted(ctx context.Context, reg registration.Registration) error {
	if w == nil {
		return nil
	}

	body := payload{
		RegistrationID: reg.ID,
		FullName:       reg.FullName,
		Email:          reg.Email,
		CampType:       reg.CampType,
		TotalCents:     reg.Pricing.TotalCents,
		Currency:       reg.Pricing.Currency,
	}
	if w.baseURL != "" {
		body.DetailURL = fmt.Sprintf("%s/admin/registrations/%s", w.baseURL, reg.ID)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification receiver returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatch fires the notification in the background. A nil notifier is a
// disabled one. Failures are swallowed after logging so they can never delay
// or fail the registration response.
func Dispatch(notifier Notifier, reg registration.Registration) {
	if notifier == nil {
		return
	}
	if webhook, ok := notifier.(*Webhook); ok && webhook == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := notifier.RegistrationAccepted(ctx, reg); err != nil {
			log.Printf("registration notification failed id=%s err=%v", reg.ID, err)
		}
	}()
}
