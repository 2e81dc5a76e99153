package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWebhookSecretMissing indicates the endpoint secret was never configured.
	ErrWebhookSecretMissing = errors.New("payments: webhook secret not configured")
	// ErrWebhookSignature indicates the payload failed signature verification.
	ErrWebhookSignature = errors.New("payments: webhook signature verification failed")
)

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name     string
	Quantity int64
	Amount   int64
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
	Items      []CheckoutLineItem
}

// CheckoutSession represents the hosted checkout session returned to the client.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// WebhookEvent is a verified event delivered by the payment provider.
type WebhookEvent struct {
	ID       string
	Type     string
	Metadata map[string]string
}

// CheckoutCompletedEvent is the event type signalling a paid checkout session.
const CheckoutCompletedEvent = "checkout.session.completed"

// Provider abstracts the hosted checkout PSP.
type Provider interface {
	// CreateCheckoutSession opens a hosted checkout session and returns the
	// URL the customer is redirected to.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// VerifyWebhook authenticates a webhook delivery against the endpoint
	// secret and returns the decoded event. Verification fails closed.
	VerifyWebhook(payload []byte, signatureHeader string) (WebhookEvent, error)
}
