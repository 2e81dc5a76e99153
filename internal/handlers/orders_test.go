package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/platform/auth"
	"github.com/savora/api/internal/services"
)

type stubOrderService struct {
	placeFn       func(context.Context, services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	advanceFn     func(context.Context, services.AdvanceStatusCommand) (services.Order, error)
	deliveredFn   func(context.Context, services.ConfirmDeliveryCommand) (services.Order, error)
	getFn         func(context.Context, string) (services.Order, error)
	listForUserFn func(context.Context, string, services.OrderListQuery) ([]services.Order, error)
	listAllFn     func(context.Context, services.OrderListQuery) ([]services.Order, error)
	deleteFn      func(context.Context, string) error
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlaceOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) AdvanceStatus(ctx context.Context, cmd services.AdvanceStatusCommand) (services.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmDelivery(ctx context.Context, cmd services.ConfirmDeliveryCommand) (services.Order, error) {
	if s.deliveredFn != nil {
		return s.deliveredFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListForUser(ctx context.Context, userID string, query services.OrderListQuery) ([]services.Order, error) {
	if s.listForUserFn != nil {
		return s.listForUserFn(ctx, userID, query)
	}
	return nil, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, query services.OrderListQuery) ([]services.Order, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, query)
	}
	return nil, nil
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return errors.New("not implemented")
}

type stubPaymentService struct {
	verifyFn  func(context.Context, string, bool) (services.PaymentVerification, error)
	webhookFn func(context.Context, []byte, string) error
	confirmFn func(context.Context, string) error
}

func (s *stubPaymentService) VerifyRedirect(ctx context.Context, orderID string, success bool) (services.PaymentVerification, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, orderID, success)
	}
	return services.PaymentVerification{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, payload, signatureHeader)
	}
	return errors.New("not implemented")
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, orderID string) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, orderID)
	}
	return errors.New("not implemented")
}

func newOrderRouter(orders services.OrderService, payments services.PaymentService) chi.Router {
	handler := NewOrderHandlers(nil, orders, payments)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func authenticated(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestOrderHandlersPlaceOrderCreated(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	var captured services.PlaceOrderCommand
	orders := &stubOrderService{
		placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
			captured = cmd
			return services.PlaceOrderResult{
				Order: services.Order{
					ID:        "ord_123",
					UserID:    cmd.UserID,
					Amount:    3400,
					Status:    domain.OrderStatusPending,
					Version:   1,
					CreatedAt: now,
					UpdatedAt: now,
				},
				CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_123",
			}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	payload := `{"items":[{"itemId":"itm_salad","quantity":2},{"itemId":"itm_rolls","quantity":1}],"address":{"firstName":"Mina","street":"1 Pier Rd","city":"Brighton","zipcode":"BN1","country":"GB","phone":"07700"}}`
	req := authenticated(httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(payload)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected command user user-1, got %s", captured.UserID)
	}
	if len(captured.Items) != 2 || captured.Items[0].MenuItemID != "itm_salad" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}
	if captured.Address.City != "Brighton" {
		t.Fatalf("expected address city Brighton, got %s", captured.Address.City)
	}

	var resp struct {
		CheckoutURL string       `json:"checkout_url"`
		Order       orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CheckoutURL != "https://checkout.stripe.com/c/pay/cs_test_123" {
		t.Fatalf("unexpected checkout url: %s", resp.CheckoutURL)
	}
	if resp.Order.ID != "ord_123" || resp.Order.Status != "Pending" || resp.Order.Version != 1 {
		t.Fatalf("unexpected order payload: %+v", resp.Order)
	}
}

func TestOrderHandlersPlaceOrderErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "empty cart", err: services.ErrOrderInvalidInput, wantStatus: http.StatusBadRequest},
		{name: "below minimum", err: services.ErrOrderBelowMinimum, wantStatus: http.StatusBadRequest},
		{name: "checkout down", err: services.ErrOrderUnavailable, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{
				placeFn: func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
					return services.PlaceOrderResult{}, tc.err
				},
			}
			router := newOrderRouter(orders, nil)

			req := authenticated(httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(`{"items":[]}`)), "user-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersPlaceOrderRequiresIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewBufferString(`{"items":[]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersListMineScopedToCaller(t *testing.T) {
	var capturedUser string
	var capturedQuery services.OrderListQuery
	orders := &stubOrderService{
		listForUserFn: func(ctx context.Context, userID string, query services.OrderListQuery) ([]services.Order, error) {
			capturedUser = userID
			capturedQuery = query
			return []services.Order{{ID: "ord_2"}, {ID: "ord_1"}}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticated(httptest.NewRequest(http.MethodGet, "/orders/?status=Preparing&limit=5", nil), "user-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedUser != "user-9" {
		t.Fatalf("expected query scoped to user-9, got %s", capturedUser)
	}
	if capturedQuery.Status != "Preparing" || capturedQuery.Limit != 5 {
		t.Fatalf("unexpected query: %+v", capturedQuery)
	}

	var resp struct {
		Orders []orderPayload `json:"orders"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Orders) != 2 || resp.Orders[0].ID != "ord_2" {
		t.Fatalf("unexpected orders payload: %+v", resp.Orders)
	}
}

func TestOrderHandlersConfirmDeliveredMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", err: nil, wantStatus: http.StatusOK},
		{name: "not ready", err: services.ErrOrderNotReady, wantStatus: http.StatusBadRequest},
		{name: "not owner", err: services.ErrOrderForbidden, wantStatus: http.StatusForbidden},
		{name: "unknown order", err: services.ErrOrderNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var captured services.ConfirmDeliveryCommand
			orders := &stubOrderService{
				deliveredFn: func(ctx context.Context, cmd services.ConfirmDeliveryCommand) (services.Order, error) {
					captured = cmd
					if tc.err != nil {
						return services.Order{}, tc.err
					}
					return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusDelivered, Version: 5}, nil
				},
			}
			router := newOrderRouter(orders, nil)

			req := authenticated(httptest.NewRequest(http.MethodPost, "/orders/ord_77/delivered", nil), "user-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if captured.OrderID != "ord_77" || captured.UserID != "user-1" {
				t.Fatalf("unexpected command: %+v", captured)
			}
		})
	}
}

func TestOrderHandlersVerifyRedirect(t *testing.T) {
	payments := &stubPaymentService{
		verifyFn: func(ctx context.Context, orderID string, success bool) (services.PaymentVerification, error) {
			if orderID != "ord_5" || !success {
				t.Fatalf("unexpected verify call: %s success=%v", orderID, success)
			}
			return services.PaymentVerification{OrderID: orderID, Paid: true}, nil
		},
	}
	router := newOrderRouter(nil, payments)

	req := httptest.NewRequest(http.MethodGet, "/orders/verify?orderId=ord_5&success=true", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		OrderID string `json:"orderId"`
		Paid    bool   `json:"paid"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "ord_5" || !resp.Paid {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOrderHandlersVerifyRedirectErrors(t *testing.T) {
	t.Run("missing orderId", func(t *testing.T) {
		router := newOrderRouter(nil, &stubPaymentService{})

		req := httptest.NewRequest(http.MethodGet, "/orders/verify?success=true", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		payments := &stubPaymentService{
			verifyFn: func(ctx context.Context, orderID string, success bool) (services.PaymentVerification, error) {
				return services.PaymentVerification{}, services.ErrPaymentOrderNotFound
			},
		}
		router := newOrderRouter(nil, payments)

		req := httptest.NewRequest(http.MethodGet, "/orders/verify?orderId=ord_missing&success=true", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})
}
