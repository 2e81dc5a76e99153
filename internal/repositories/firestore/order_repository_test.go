package firestore

import (
	"errors"
	"testing"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/repositories"
)

func TestToDomainOrderNormalisesStatus(t *testing.T) {
	cases := []struct {
		name   string
		stored string
		want   domain.OrderStatus
	}{
		{name: "canonical stage", stored: "Ready", want: domain.OrderStatusReady},
		{name: "legacy alias", stored: "Food Processing", want: domain.OrderStatusPreparing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := orderDocument{
				UserID:    "usr_1",
				Status:    tc.stored,
				Amount:    1850,
				Version:   3,
				CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			}
			order, err := toDomainOrder("ord_1", doc)
			if err != nil {
				t.Fatalf("toDomainOrder: %v", err)
			}
			if order.Status != tc.want {
				t.Errorf("expected status %s, got %s", tc.want, order.Status)
			}
			if order.ID != "ord_1" || order.Version != 3 {
				t.Errorf("unexpected order: %+v", order)
			}
		})
	}
}

func TestToDomainOrderRejectsUnknownStatus(t *testing.T) {
	doc := orderDocument{UserID: "usr_1", Status: "Shipped"}

	_, err := toDomainOrder("ord_1", doc)
	if err == nil {
		t.Fatal("expected an error for an unknown stored status")
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected a categorised repository error, got %T", err)
	}
	if repoErr.IsNotFound() || repoErr.IsConflict() || repoErr.IsUnavailable() {
		t.Errorf("corrupt document must not map to a retryable category: %v", err)
	}
}
