package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	newFn func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return s.newFn(params)
}

func signWebhookPayload(secret string, payload []byte, at time.Time) string {
	timestamp := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewStripeProviderRequiresAPIKeyOrClient(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}

	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessionAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider")
	}
}

func TestCreateCheckoutSessionBuildsLineItems(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	sessions := &stubSessionAPI{
		newFn: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{
				ID:        "cs_test_1",
				URL:       "https://checkout.stripe.com/pay/cs_test_1",
				ExpiresAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Unix(),
			}, nil
		},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:   "usd",
		SuccessURL: "https://shop.example/verify?success=true&orderId=ord_1",
		CancelURL:  "https://shop.example/verify?success=false&orderId=ord_1",
		Metadata:   map[string]string{"orderId": "ord_1", "userId": "usr_1"},
		Items: []CheckoutLineItem{
			{Name: "Greek salad", Quantity: 2, Amount: 1200},
			{Name: "Delivery", Quantity: 1, Amount: 200},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if session.ID != "cs_test_1" || session.RedirectURL != "https://checkout.stripe.com/pay/cs_test_1" {
		t.Errorf("unexpected session: %+v", session)
	}
	if !session.ExpiresAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected expiry: %v", session.ExpiresAt)
	}

	if captured == nil {
		t.Fatal("session params were not sent")
	}
	if got := stripe.StringValue(captured.Mode); got != string(stripe.CheckoutSessionModePayment) {
		t.Errorf("unexpected mode %q", got)
	}
	if captured.Metadata["orderId"] != "ord_1" {
		t.Errorf("metadata missing order id: %v", captured.Metadata)
	}
	if len(captured.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(captured.LineItems))
	}
	first := captured.LineItems[0]
	if stripe.Int64Value(first.Quantity) != 2 {
		t.Errorf("unexpected quantity %d", stripe.Int64Value(first.Quantity))
	}
	if stripe.Int64Value(first.PriceData.UnitAmount) != 1200 {
		t.Errorf("unexpected unit amount %d", stripe.Int64Value(first.PriceData.UnitAmount))
	}
	if stripe.StringValue(first.PriceData.Currency) != "usd" {
		t.Errorf("unexpected currency %q", stripe.StringValue(first.PriceData.Currency))
	}
	if stripe.StringValue(first.PriceData.ProductData.Name) != "Greek salad" {
		t.Errorf("unexpected product name %q", stripe.StringValue(first.PriceData.ProductData.Name))
	}
}

func TestCreateCheckoutSessionRejectsEmptyOrder(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessionAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Currency: "usd"}); err == nil {
		t.Fatal("expected error for empty line items")
	}
}

func TestVerifyWebhookFailsClosedWithoutSecret(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &stubSessionAPI{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	_, err = provider.VerifyWebhook(payload, signWebhookPayload("whsec_test", payload, time.Now()))
	if !errors.Is(err, ErrWebhookSecretMissing) {
		t.Fatalf("expected ErrWebhookSecretMissing, got %v", err)
	}
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions:      &stubSessionAPI{},
		WebhookSecret: "whsec_test",
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	_, err = provider.VerifyWebhook(payload, signWebhookPayload("whsec_other", payload, time.Now()))
	if !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}

	_, err = provider.VerifyWebhook(payload, "t=0,v1=deadbeef")
	if !errors.Is(err, ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature for garbage header, got %v", err)
	}
}

func TestVerifyWebhookDecodesCheckoutMetadata(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Sessions:      &stubSessionAPI{},
		WebhookSecret: "whsec_test",
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	payload := []byte(`{
		"id": "evt_1",
		"api_version": "2024-04-10",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"metadata": {"orderId": "ord_1", "userId": "usr_1"}
			}
		}
	}`)

	event, err := provider.VerifyWebhook(payload, signWebhookPayload("whsec_test", payload, time.Now()))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.Type != CheckoutCompletedEvent {
		t.Errorf("unexpected type %q", event.Type)
	}
	if event.Metadata["orderId"] != "ord_1" || event.Metadata["userId"] != "usr_1" {
		t.Errorf("unexpected metadata: %v", event.Metadata)
	}
}
