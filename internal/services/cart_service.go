package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/savora/api/internal/repositories"
)

var (
	errCartUsersRequired = errors.New("cart service: user repository is required")
	errCartMenuRequired  = errors.New("cart service: menu repository is required")
	errCartClockRequired = errors.New("cart service: clock is required")
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUserNotFound indicates the user document does not exist.
	ErrCartUserNotFound = errors.New("cart service: user not found")
	// ErrCartItemUnknown indicates the referenced menu item does not exist.
	ErrCartItemUnknown = errors.New("cart service: unknown menu item")
	// ErrCartUnavailable indicates the backend could not fulfil the request.
	ErrCartUnavailable = errors.New("cart service: unavailable")
)

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	Users  repositories.UserRepository
	Menu   repositories.MenuRepository
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type cartService struct {
	users  repositories.UserRepository
	menu   repositories.MenuRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Users == nil {
		return nil, errCartUsersRequired
	}
	if deps.Menu == nil {
		return nil, errCartMenuRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		users:  deps.Users,
		menu:   deps.Menu,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// AddItem increments the quantity of one menu item in the user's cart.
func (s *cartService) AddItem(ctx context.Context, userID, itemID string) (map[string]int, error) {
	uid, item, err := s.validate(userID, itemID)
	if err != nil {
		return nil, err
	}

	if _, err := s.menu.FindByID(ctx, item); err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrCartItemUnknown, item)
		}
		return nil, s.translateRepoError(err)
	}

	cart, err := s.users.AdjustCartItem(ctx, uid, item, 1, s.now())
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return cart, nil
}

// RemoveItem decrements the quantity of one cart entry, flooring at zero.
func (s *cartService) RemoveItem(ctx context.Context, userID, itemID string) (map[string]int, error) {
	uid, item, err := s.validate(userID, itemID)
	if err != nil {
		return nil, err
	}

	cart, err := s.users.AdjustCartItem(ctx, uid, item, -1, s.now())
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return cart, nil
}

// Get returns the user's cart map.
func (s *cartService) Get(ctx context.Context, userID string) (map[string]int, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	cart := make(map[string]int, len(user.CartData))
	for id, qty := range user.CartData {
		cart[id] = qty
	}
	return cart, nil
}

// Clear empties the user's cart.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.users.ClearCart(ctx, uid, s.now()); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) validate(userID, itemID string) (string, string, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return "", "", fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	item := strings.TrimSpace(itemID)
	if item == "" {
		return "", "", fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	return uid, item, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrCartUserNotFound
	}
	return ErrCartUnavailable
}
