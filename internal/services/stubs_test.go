package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/events"
	"github.com/savora/api/internal/payments"
	"github.com/savora/api/internal/repositories"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}

type repoError struct {
	message     string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string       { return e.message }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var (
	errRepoNotFound    = repoError{message: "not found", notFound: true}
	errRepoUnavailable = repoError{message: "unavailable", unavailable: true}
)

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order) error
	findFn         func(context.Context, string) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderListFilter) ([]domain.Order, error)
	updateStatusFn func(context.Context, string, domain.OrderStatus, domain.OrderStatus, time.Time) (domain.Order, error)
	markPaidFn     func(context.Context, string, time.Time) (repositories.PaymentMark, error)
	deleteFn       func(context.Context, string) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, from, to, updatedAt)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (repositories.PaymentMark, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, orderID, paidAt)
	}
	return repositories.PaymentMark{}, errors.New("not implemented")
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

type stubUserRepo struct {
	insertFn      func(context.Context, domain.UserAccount) error
	findFn        func(context.Context, string) (domain.UserAccount, error)
	findByEmailFn func(context.Context, string) (domain.UserAccount, error)
	adjustFn      func(context.Context, string, string, int, time.Time) (map[string]int, error)
	clearFn       func(context.Context, string, time.Time) error
}

func (s *stubUserRepo) Insert(ctx context.Context, user domain.UserAccount) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserAccount{}, errors.New("not implemented")
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return domain.UserAccount{}, errRepoNotFound
}

func (s *stubUserRepo) AdjustCartItem(ctx context.Context, userID, itemID string, delta int, updatedAt time.Time) (map[string]int, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, userID, itemID, delta, updatedAt)
	}
	return map[string]int{}, nil
}

func (s *stubUserRepo) ClearCart(ctx context.Context, userID string, updatedAt time.Time) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID, updatedAt)
	}
	return nil
}

type stubMenuRepo struct {
	insertFn   func(context.Context, domain.MenuItem) error
	updateFn   func(context.Context, domain.MenuItem) error
	deleteFn   func(context.Context, string) error
	findFn     func(context.Context, string) (domain.MenuItem, error)
	listFn     func(context.Context, repositories.MenuListFilter) ([]domain.MenuItem, error)
	setImageFn func(context.Context, string, string, time.Time) error
}

func (s *stubMenuRepo) Insert(ctx context.Context, item domain.MenuItem) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return nil
}

func (s *stubMenuRepo) Update(ctx context.Context, item domain.MenuItem) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, item)
	}
	return nil
}

func (s *stubMenuRepo) Delete(ctx context.Context, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, itemID)
	}
	return nil
}

func (s *stubMenuRepo) FindByID(ctx context.Context, itemID string) (domain.MenuItem, error) {
	if s.findFn != nil {
		return s.findFn(ctx, itemID)
	}
	return domain.MenuItem{}, errRepoNotFound
}

func (s *stubMenuRepo) List(ctx context.Context, filter repositories.MenuListFilter) ([]domain.MenuItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubMenuRepo) SetImagePath(ctx context.Context, itemID, path string, updatedAt time.Time) error {
	if s.setImageFn != nil {
		return s.setImageFn(ctx, itemID, path, updatedAt)
	}
	return nil
}

type stubCheckout struct {
	createFn func(context.Context, payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	verifyFn func([]byte, string) (payments.WebhookEvent, error)
}

func (s *stubCheckout) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.CheckoutSession{ID: "cs_test", RedirectURL: "https://checkout.example/cs_test"}, nil
}

func (s *stubCheckout) VerifyWebhook(payload []byte, signatureHeader string) (payments.WebhookEvent, error) {
	if s.verifyFn != nil {
		return s.verifyFn(payload, signatureHeader)
	}
	return payments.WebhookEvent{}, errors.New("not implemented")
}

// recordingPublisher captures published events; safe for concurrent use.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, event := range p.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
