package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/events"
	"github.com/savora/api/internal/payments"
	"github.com/savora/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderMenuRequired       = errors.New("order service: menu repository is required")
	errOrderCheckoutRequired   = errors.New("order service: checkout provider is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderInvalidStatus indicates the target stage is not part of the lifecycle.
	ErrOrderInvalidStatus = errors.New("order service: invalid status")
	// ErrOrderInvalidTransition indicates the requested move violates the stage sequence.
	ErrOrderInvalidTransition = errors.New("order service: invalid transition")
	// ErrOrderNotReady indicates delivery confirmation was attempted before the order was ready.
	ErrOrderNotReady = errors.New("order service: order is not ready")
	// ErrOrderForbidden indicates the actor does not own the order.
	ErrOrderForbidden = errors.New("order service: forbidden")
	// ErrOrderBelowMinimum indicates the order total is below the chargeable minimum.
	ErrOrderBelowMinimum = errors.New("order service: amount below chargeable minimum")
	// ErrOrderConflict indicates a concurrent modification prevented the update.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderUnavailable indicates the backend could not fulfil the request.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// OrderServiceDeps wires the repositories, checkout provider and event sink
// for order lifecycle operations.
type OrderServiceDeps struct {
	Orders             repositories.OrderRepository
	Menu               repositories.MenuRepository
	Checkout           payments.Provider
	Events             events.Publisher
	FrontendOrigin     string
	Currency           string
	DeliveryFeeCents   int64
	MinChargeableCents int64
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(context.Context, string, map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	menu           repositories.MenuRepository
	checkout       payments.Provider
	events         events.Publisher
	frontendOrigin string
	currency       string
	deliveryFee    int64
	minChargeable  int64
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Menu == nil {
		return nil, errOrderMenuRequired
	}
	if deps.Checkout == nil {
		return nil, errOrderCheckoutRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "ord_" + ulid.Make().String() }
	}

	return &orderService{
		orders:         deps.Orders,
		menu:           deps.Menu,
		checkout:       deps.Checkout,
		events:         deps.Events,
		frontendOrigin: strings.TrimRight(strings.TrimSpace(deps.FrontendOrigin), "/"),
		currency:       currency,
		deliveryFee:    deps.DeliveryFeeCents,
		minChargeable:  deps.MinChargeableCents,
		now:            func() time.Time { return deps.Clock().UTC() },
		newID:          idGen,
		logger:         logger,
	}, nil
}

// PlaceOrder snapshots menu prices, persists a pending unpaid order and opens
// a hosted checkout session for it.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return PlaceOrderResult{}, fmt.Errorf("%w: order requires at least one item", ErrOrderInvalidInput)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	var subtotal int64
	for _, input := range cmd.Items {
		itemID := strings.TrimSpace(input.MenuItemID)
		if itemID == "" {
			return PlaceOrderResult{}, fmt.Errorf("%w: item id is required", ErrOrderInvalidInput)
		}
		if input.Quantity <= 0 {
			return PlaceOrderResult{}, fmt.Errorf("%w: quantity must be greater than zero", ErrOrderInvalidInput)
		}

		dish, err := s.menu.FindByID(ctx, itemID)
		if err != nil {
			if isRepoNotFound(err) {
				return PlaceOrderResult{}, fmt.Errorf("%w: unknown menu item %q", ErrOrderInvalidInput, itemID)
			}
			return PlaceOrderResult{}, s.translateRepoError(err)
		}

		items = append(items, domain.OrderItem{
			MenuItemID: dish.ID,
			Name:       dish.Name,
			UnitPrice:  dish.Price,
			Quantity:   input.Quantity,
		})
		subtotal += dish.Price * int64(input.Quantity)
	}

	amount := subtotal + s.deliveryFee
	if amount < s.minChargeable {
		return PlaceOrderResult{}, fmt.Errorf("%w: total %d is below %d", ErrOrderBelowMinimum, amount, s.minChargeable)
	}

	now := s.now()
	order := domain.Order{
		ID:        s.newID(),
		UserID:    userID,
		Items:     items,
		Address:   cmd.Address,
		Amount:    amount,
		Status:    domain.OrderStatusPending,
		Paid:      false,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return PlaceOrderResult{}, s.translateRepoError(err)
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, s.checkoutRequest(order))
	if err != nil {
		// The pending order is kept; it stays unpaid and can be retried or
		// cleaned up by the admin.
		s.logger(ctx, "orders.checkout_session_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return PlaceOrderResult{}, fmt.Errorf("%w: checkout session", ErrOrderUnavailable)
	}

	s.logger(ctx, "orders.placed", map[string]any{
		"orderID": order.ID,
		"userID":  userID,
		"amount":  amount,
	})

	return PlaceOrderResult{Order: order, CheckoutURL: session.RedirectURL}, nil
}

func (s *orderService) checkoutRequest(order domain.Order) payments.CheckoutSessionRequest {
	lines := make([]payments.CheckoutLineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		lines = append(lines, payments.CheckoutLineItem{
			Name:     item.Name,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
		})
	}
	if s.deliveryFee > 0 {
		lines = append(lines, payments.CheckoutLineItem{
			Name:     "Delivery",
			Quantity: 1,
			Amount:   s.deliveryFee,
		})
	}

	return payments.CheckoutSessionRequest{
		Currency:   s.currency,
		SuccessURL: s.verifyURL(order.ID, true),
		CancelURL:  s.verifyURL(order.ID, false),
		Metadata: map[string]string{
			"orderId": order.ID,
			"userId":  order.UserID,
		},
		Items: lines,
	}
}

func (s *orderService) verifyURL(orderID string, success bool) string {
	query := url.Values{}
	query.Set("success", fmt.Sprintf("%t", success))
	query.Set("orderId", orderID)
	return s.frontendOrigin + "/verify?" + query.Encode()
}

// AdvanceStatus moves the order to the named stage. Moving to the current
// stage is an idempotent no-op; backward moves and stage skips are rejected.
func (s *orderService) AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	raw := strings.TrimSpace(cmd.Target)
	if raw == "" {
		return Order{}, fmt.Errorf("%w: allowed values are %s", ErrOrderInvalidStatus, statusSequenceList())
	}
	target, ok := domain.NormalizeStatus(raw)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q is not one of %s", ErrOrderInvalidStatus, raw, statusSequenceList())
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	currentIdx := order.Status.Index()
	targetIdx := target.Index()

	switch {
	case targetIdx == currentIdx:
		// Repeating the current stage changes nothing and emits nothing.
		return order, nil
	case targetIdx < currentIdx:
		return Order{}, fmt.Errorf("%w: cannot move backward from %s to %s", ErrOrderInvalidTransition, order.Status, target)
	case targetIdx > currentIdx+1:
		next, _ := order.Status.Next()
		return Order{}, fmt.Errorf("%w: next allowed stage after %s is %s", ErrOrderInvalidTransition, order.Status, next)
	}

	// The repository re-checks the stage inside its transaction, so a racing
	// request that already advanced the order surfaces as a conflict instead
	// of silently regressing it.
	updated, err := s.orders.UpdateStatus(ctx, orderID, order.Status, target, s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishStatusChanged(ctx, updated)

	s.logger(ctx, "orders.status_advanced", map[string]any{
		"orderID": updated.ID,
		"status":  string(updated.Status),
		"actorID": strings.TrimSpace(cmd.ActorID),
		"version": updated.Version,
	})

	return updated, nil
}

// ConfirmDelivery lets the owning customer move a ready order to Delivered.
func (s *orderService) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if orderID == "" || userID == "" {
		return Order{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if order.UserID != userID {
		return Order{}, ErrOrderForbidden
	}

	switch order.Status {
	case domain.OrderStatusDelivered:
		// A repeated confirmation succeeds without emitting anything.
		return order, nil
	case domain.OrderStatusReady:
	default:
		return Order{}, fmt.Errorf("%w: order is %s", ErrOrderNotReady, order.Status)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusReady, domain.OrderStatusDelivered, s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishStatusChanged(ctx, updated)

	s.logger(ctx, "orders.delivery_confirmed", map[string]any{
		"orderID": updated.ID,
		"userID":  userID,
		"version": updated.Version,
	})

	return updated, nil
}

// GetOrder loads a single order.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, trimmed)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListForUser returns the user's orders, newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string, query OrderListQuery) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	filter, err := s.buildListFilter(query)
	if err != nil {
		return nil, err
	}
	filter.UserID = uid

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// ListAll returns every order, newest first, for the admin dashboard.
func (s *orderService) ListAll(ctx context.Context, query OrderListQuery) ([]Order, error) {
	filter, err := s.buildListFilter(query)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// DeleteOrder removes the order document.
func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.orders.Delete(ctx, trimmed); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "orders.deleted", map[string]any{"orderID": trimmed})
	return nil
}

func (s *orderService) buildListFilter(query OrderListQuery) (repositories.OrderListFilter, error) {
	filter := repositories.OrderListFilter{
		PlacedFrom: query.PlacedFrom,
		PlacedTo:   query.PlacedTo,
		Limit:      query.Limit,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := domain.NormalizeStatus(raw)
		if !ok {
			return repositories.OrderListFilter{}, fmt.Errorf("%w: %q is not one of %s", ErrOrderInvalidStatus, raw, statusSequenceList())
		}
		filter.Status = &status
	}
	return filter, nil
}

// publishStatusChanged emits the broadcast event. Failures are logged and
// never fail the state change itself.
func (s *orderService) publishStatusChanged(ctx context.Context, order domain.Order) {
	if s.events == nil {
		return
	}
	event := events.NewEvent(events.TypeStatusChanged, events.StatusChangedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		Version: order.Version,
	}, s.now())
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"type":    events.TypeStatusChanged,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		}
	}
	return ErrOrderUnavailable
}

func statusSequenceList() string {
	names := make([]string, len(domain.StatusSequence))
	for i, stage := range domain.StatusSequence {
		names[i] = string(stage)
	}
	return strings.Join(names, ", ")
}
