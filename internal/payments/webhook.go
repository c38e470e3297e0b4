package payments

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Razorpay webhook event names the portal acts on.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// ErrMalformedEvent is returned for webhook bodies that do not parse.
var ErrMalformedEvent = errors.New("payments: malformed webhook event")

// WebhookEvent is the part of a Razorpay webhook delivery the portal reads.
type WebhookEvent struct {
	Event     string
	OrderID   string
	PaymentID string
	Amount    int64
	Currency  string
	Status    Status
	Notes     map[string]string
	CreatedAt time.Time
}

type razorpayEventEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity struct {
				ID       string            `json:"id"`
				OrderID  string            `json:"order_id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Status   string            `json:"status"`
				Notes    map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseRazorpayEvent decodes a verified webhook body.
func ParseRazorpayEvent(body []byte) (WebhookEvent, error) {
	var env razorpayEventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookEvent{}, ErrMalformedEvent
	}
	event := WebhookEvent{Event: strings.TrimSpace(env.Event), Status: StatusPending}
	if event.Event == "" {
		return WebhookEvent{}, ErrMalformedEvent
	}
	if env.CreatedAt > 0 {
		event.CreatedAt = time.Unix(env.CreatedAt, 0).UTC()
	}
	if payment := env.Payload.Payment; payment != nil {
		entity := payment.Entity
		event.PaymentID = entity.ID
		event.OrderID = entity.OrderID
		event.Amount = entity.Amount
		event.Currency = strings.ToUpper(entity.Currency)
		event.Notes = entity.Notes
		switch entity.Status {
		case "captured":
			event.Status = StatusSucceeded
		case "failed":
			event.Status = StatusFailed
		}
	}
	if order := env.Payload.Order; order != nil {
		if event.OrderID == "" {
			event.OrderID = order.Entity.ID
		}
		if event.Notes == nil {
			event.Notes = order.Entity.Notes
		}
	}
	if event.Event == EventOrderPaid {
		event.Status = StatusSucceeded
	}
	return event, nil
}
