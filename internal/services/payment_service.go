package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/savora/api/internal/events"
	"github.com/savora/api/internal/payments"
	"github.com/savora/api/internal/repositories"
)

var (
	errPaymentOrdersRequired   = errors.New("payment service: order repository is required")
	errPaymentUsersRequired    = errors.New("payment service: user repository is required")
	errPaymentProviderRequired = errors.New("payment service: checkout provider is required")
	errPaymentClockRequired    = errors.New("payment service: clock is required")
)

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid input.
	ErrPaymentInvalidInput = errors.New("payment service: invalid input")
	// ErrPaymentOrderNotFound indicates the redirect referenced an unknown order.
	ErrPaymentOrderNotFound = errors.New("payment service: order not found")
	// ErrPaymentNotConfigured indicates webhook verification is impossible because no secret is set.
	ErrPaymentNotConfigured = errors.New("payment service: webhook secret not configured")
	// ErrPaymentBadSignature indicates the webhook payload failed verification.
	ErrPaymentBadSignature = errors.New("payment service: invalid webhook signature")
	// ErrPaymentUnavailable indicates the backend could not fulfil the request.
	ErrPaymentUnavailable = errors.New("payment service: unavailable")
)

// PaymentServiceDeps wires the repositories, PSP provider and event sink for
// payment reconciliation.
type PaymentServiceDeps struct {
	Orders   repositories.OrderRepository
	Users    repositories.UserRepository
	Provider payments.Provider
	Events   events.Publisher
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	provider payments.Provider
	events   events.Publisher
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService enforcing dependency validation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errPaymentOrdersRequired
	}
	if deps.Users == nil {
		return nil, errPaymentUsersRequired
	}
	if deps.Provider == nil {
		return nil, errPaymentProviderRequired
	}
	if deps.Clock == nil {
		return nil, errPaymentClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		users:    deps.Users,
		provider: deps.Provider,
		events:   deps.Events,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// VerifyRedirect handles the customer returning from hosted checkout. The
// success flag alone never proves payment; a failure flag touches nothing,
// while a success flag runs the same confirmation path the webhook uses.
func (s *paymentService) VerifyRedirect(ctx context.Context, orderID string, success bool) (PaymentVerification, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return PaymentVerification{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, trimmed)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentVerification{}, ErrPaymentOrderNotFound
		}
		return PaymentVerification{}, fmt.Errorf("%w: load order", ErrPaymentUnavailable)
	}

	if !success {
		s.logger(ctx, "payments.redirect_failure", map[string]any{"orderID": trimmed})
		return PaymentVerification{OrderID: trimmed, Paid: order.Paid}, nil
	}

	if err := s.ConfirmPayment(ctx, trimmed); err != nil {
		return PaymentVerification{}, err
	}
	return PaymentVerification{OrderID: trimmed, Paid: true}, nil
}

// HandleWebhook verifies and processes a PSP webhook delivery.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.provider.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrWebhookSecretMissing):
			return ErrPaymentNotConfigured
		case errors.Is(err, payments.ErrWebhookSignature):
			return fmt.Errorf("%w: %v", ErrPaymentBadSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrPaymentBadSignature, err)
	}

	if event.Type != payments.CheckoutCompletedEvent {
		s.logger(ctx, "payments.webhook_ignored", map[string]any{"type": event.Type})
		return nil
	}

	orderID := strings.TrimSpace(event.Metadata["orderId"])
	if orderID == "" {
		s.logger(ctx, "payments.webhook_missing_order", map[string]any{"eventID": event.ID})
		return nil
	}

	return s.ConfirmPayment(ctx, orderID)
}

// ConfirmPayment flips the payment flag exactly once. The underlying mark is
// a single transactional step, so racing redirect and webhook confirmations
// trigger the first-confirmation side effects exactly once. A missing order
// is acknowledged rather than failed so the PSP does not retry forever.
func (s *paymentService) ConfirmPayment(ctx context.Context, orderID string) error {
	mark, err := s.orders.MarkPaid(ctx, orderID, s.now())
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "payments.order_missing", map[string]any{"orderID": orderID})
			return nil
		}
		return fmt.Errorf("%w: mark paid", ErrPaymentUnavailable)
	}

	order := mark.Order

	if !mark.WasPaid {
		if err := s.users.ClearCart(ctx, order.UserID, s.now()); err != nil {
			s.logger(ctx, "payments.cart_clear_failed", map[string]any{
				"orderID": order.ID,
				"userID":  order.UserID,
				"error":   err.Error(),
			})
		}

		s.publish(ctx, events.NewEvent(events.TypeOrderPlaced, events.OrderPlacedPayload{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  order.Status,
			Amount:  order.Amount,
			Date:    order.CreatedAt,
			Version: order.Version,
		}, s.now()))

		s.logger(ctx, "payments.confirmed", map[string]any{
			"orderID": order.ID,
			"userID":  order.UserID,
			"amount":  order.Amount,
		})
	}

	s.publish(ctx, events.NewEvent(events.TypePaymentUpdated, events.PaymentUpdatedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Payment: true,
		Version: order.Version,
	}, s.now()))

	return nil
}

func (s *paymentService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "payments.event_publish_failed", map[string]any{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}
