package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/events"
	"github.com/savora/api/internal/payments"
	"github.com/savora/api/internal/repositories"
)

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Users == nil {
		deps.Users = &stubUserRepo{}
	}
	if deps.Provider == nil {
		deps.Provider = &stubCheckout{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

func paidMark(orderID string, wasPaid bool) repositories.PaymentMark {
	version := int64(2)
	if wasPaid {
		version = 3
	}
	return repositories.PaymentMark{
		Order: domain.Order{
			ID:        orderID,
			UserID:    "usr_1",
			Amount:    3400,
			Status:    domain.OrderStatusPending,
			Paid:      true,
			Version:   version,
			CreatedAt: fixedClock().Add(-time.Hour),
		},
		WasPaid: wasPaid,
	}
}

func TestConfirmPaymentFirstConfirmation(t *testing.T) {
	var cleared int
	orders := &stubOrderRepo{
		markPaidFn: func(_ context.Context, orderID string, _ time.Time) (repositories.PaymentMark, error) {
			return paidMark(orderID, false), nil
		},
	}
	users := &stubUserRepo{
		clearFn: func(_ context.Context, userID string, _ time.Time) error {
			if userID != "usr_1" {
				t.Errorf("cleared wrong cart: %s", userID)
			}
			cleared++
			return nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Users: users, Events: publisher})

	if err := svc.ConfirmPayment(context.Background(), "ord_1"); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	if cleared != 1 {
		t.Errorf("expected 1 cart clear, got %d", cleared)
	}
	placed := publisher.byType(events.TypeOrderPlaced)
	if len(placed) != 1 {
		t.Fatalf("expected 1 orderPlaced event, got %d", len(placed))
	}
	payload := placed[0].Data.(events.OrderPlacedPayload)
	if payload.OrderID != "ord_1" || payload.Amount != 3400 || payload.Version != 2 {
		t.Errorf("unexpected orderPlaced payload: %+v", payload)
	}
	if updated := publisher.byType(events.TypePaymentUpdated); len(updated) != 1 {
		t.Errorf("expected 1 paymentUpdated event, got %d", len(updated))
	}
}

func TestConfirmPaymentDuplicateSkipsSideEffects(t *testing.T) {
	var cleared int
	orders := &stubOrderRepo{
		markPaidFn: func(_ context.Context, orderID string, _ time.Time) (repositories.PaymentMark, error) {
			return paidMark(orderID, true), nil
		},
	}
	users := &stubUserRepo{
		clearFn: func(context.Context, string, time.Time) error {
			cleared++
			return nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Users: users, Events: publisher})

	if err := svc.ConfirmPayment(context.Background(), "ord_1"); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	if cleared != 0 {
		t.Errorf("duplicate confirmation must not clear the cart, got %d", cleared)
	}
	if placed := publisher.byType(events.TypeOrderPlaced); len(placed) != 0 {
		t.Errorf("duplicate confirmation must not emit orderPlaced, got %d", len(placed))
	}
	if updated := publisher.byType(events.TypePaymentUpdated); len(updated) != 1 {
		t.Errorf("paymentUpdated must still be emitted, got %d", len(updated))
	}
}

func TestConfirmPaymentMissingOrderIsAcknowledged(t *testing.T) {
	orders := &stubOrderRepo{
		markPaidFn: func(context.Context, string, time.Time) (repositories.PaymentMark, error) {
			return repositories.PaymentMark{}, errRepoNotFound
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Events: publisher})

	if err := svc.ConfirmPayment(context.Background(), "ord_gone"); err != nil {
		t.Fatalf("missing order must be acknowledged, got %v", err)
	}
	if len(publisher.byType(events.TypePaymentUpdated)) != 0 {
		t.Error("no events expected for a missing order")
	}
}

func TestVerifyRedirectFailureTouchesNothing(t *testing.T) {
	markCalled := false
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending}, nil
		},
		markPaidFn: func(context.Context, string, time.Time) (repositories.PaymentMark, error) {
			markCalled = true
			return repositories.PaymentMark{}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	result, err := svc.VerifyRedirect(context.Background(), "ord_1", false)
	if err != nil {
		t.Fatalf("VerifyRedirect: %v", err)
	}
	if result.Paid {
		t.Error("failure flag must report unpaid")
	}
	if markCalled {
		t.Error("failure flag must not touch the order")
	}
}

func TestVerifyRedirectSuccessConfirms(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusPending}, nil
		},
		markPaidFn: func(_ context.Context, orderID string, _ time.Time) (repositories.PaymentMark, error) {
			return paidMark(orderID, false), nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	result, err := svc.VerifyRedirect(context.Background(), "ord_1", true)
	if err != nil {
		t.Fatalf("VerifyRedirect: %v", err)
	}
	if !result.Paid || result.OrderID != "ord_1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestVerifyRedirectUnknownOrder(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, errRepoNotFound
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	if _, err := svc.VerifyRedirect(context.Background(), "ord_gone", true); !errors.Is(err, ErrPaymentOrderNotFound) {
		t.Fatalf("expected ErrPaymentOrderNotFound, got %v", err)
	}
	if _, err := svc.VerifyRedirect(context.Background(), "", true); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}
}

func TestHandleWebhookErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		verifyErr error
		want      error
	}{
		{name: "secret missing", verifyErr: payments.ErrWebhookSecretMissing, want: ErrPaymentNotConfigured},
		{name: "bad signature", verifyErr: payments.ErrWebhookSignature, want: ErrPaymentBadSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			markCalled := false
			orders := &stubOrderRepo{
				markPaidFn: func(context.Context, string, time.Time) (repositories.PaymentMark, error) {
					markCalled = true
					return repositories.PaymentMark{}, nil
				},
			}
			provider := &stubCheckout{
				verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
					return payments.WebhookEvent{}, tc.verifyErr
				},
			}
			svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

			err := svc.HandleWebhook(context.Background(), []byte("{}"), "t=1,v1=bad")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if markCalled {
				t.Error("rejected webhook must not change state")
			}
		})
	}
}

func TestHandleWebhookRoutesCompletedCheckout(t *testing.T) {
	var markedOrder string
	orders := &stubOrderRepo{
		markPaidFn: func(_ context.Context, orderID string, _ time.Time) (repositories.PaymentMark, error) {
			markedOrder = orderID
			return paidMark(orderID, false), nil
		},
	}
	provider := &stubCheckout{
		verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{
				ID:       "evt_1",
				Type:     payments.CheckoutCompletedEvent,
				Metadata: map[string]string{"orderId": "ord_1", "userId": "usr_1"},
			}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

	if err := svc.HandleWebhook(context.Background(), []byte("{}"), "t=1,v1=ok"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if markedOrder != "ord_1" {
		t.Errorf("expected ord_1 confirmed, got %q", markedOrder)
	}
}

func TestHandleWebhookIgnoresOtherEventsAndMissingMetadata(t *testing.T) {
	markCalled := false
	orders := &stubOrderRepo{
		markPaidFn: func(context.Context, string, time.Time) (repositories.PaymentMark, error) {
			markCalled = true
			return repositories.PaymentMark{}, nil
		},
	}

	for _, event := range []payments.WebhookEvent{
		{ID: "evt_1", Type: "payment_intent.created"},
		{ID: "evt_2", Type: payments.CheckoutCompletedEvent},
	} {
		provider := &stubCheckout{
			verifyFn: func([]byte, string) (payments.WebhookEvent, error) { return event, nil },
		}
		svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})
		if err := svc.HandleWebhook(context.Background(), []byte("{}"), "t=1,v1=ok"); err != nil {
			t.Fatalf("HandleWebhook(%s): %v", event.Type, err)
		}
	}
	if markCalled {
		t.Error("events without an order id must be acknowledged without state changes")
	}
}

// casOrderRepo flips the payment flag under a mutex, mirroring the Firestore
// transaction, so racing confirmations observe WasPaid exactly once as false.
type casOrderRepo struct {
	mu    sync.Mutex
	order domain.Order
}

func (r *casOrderRepo) Insert(context.Context, domain.Order) error { return nil }
func (r *casOrderRepo) FindByID(context.Context, string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order, nil
}
func (r *casOrderRepo) List(context.Context, repositories.OrderListFilter) ([]domain.Order, error) {
	return nil, nil
}
func (r *casOrderRepo) UpdateStatus(context.Context, string, domain.OrderStatus, domain.OrderStatus, time.Time) (domain.Order, error) {
	return domain.Order{}, errors.New("not implemented")
}
func (r *casOrderRepo) Delete(context.Context, string) error { return nil }

func (r *casOrderRepo) MarkPaid(_ context.Context, _ string, _ time.Time) (repositories.PaymentMark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasPaid := r.order.Paid
	if !wasPaid {
		r.order.Paid = true
		r.order.Version++
	}
	return repositories.PaymentMark{Order: r.order, WasPaid: wasPaid}, nil
}

func TestConfirmPaymentRacingSourcesClearCartOnce(t *testing.T) {
	repo := &casOrderRepo{order: domain.Order{
		ID:      "ord_1",
		UserID:  "usr_1",
		Amount:  3400,
		Status:  domain.OrderStatusPending,
		Version: 1,
	}}
	var cleared atomic.Int32
	users := &stubUserRepo{
		clearFn: func(context.Context, string, time.Time) error {
			cleared.Add(1)
			return nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo, Users: users, Events: publisher})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.ConfirmPayment(context.Background(), "ord_1"); err != nil {
				t.Errorf("ConfirmPayment: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := cleared.Load(); got != 1 {
		t.Errorf("expected exactly 1 cart clear, got %d", got)
	}
	if placed := publisher.byType(events.TypeOrderPlaced); len(placed) != 1 {
		t.Errorf("expected exactly 1 orderPlaced event, got %d", len(placed))
	}
	if updated := publisher.byType(events.TypePaymentUpdated); len(updated) != 2 {
		t.Errorf("each confirmation emits paymentUpdated, got %d", len(updated))
	}
}
