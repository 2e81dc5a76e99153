package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/platform/storage"
	"github.com/savora/api/internal/repositories"
)

var (
	errMenuRepositoryRequired = errors.New("menu service: menu repository is required")
	errMenuClockRequired      = errors.New("menu service: clock is required")
)

var (
	// ErrMenuInvalidInput indicates the caller supplied invalid input.
	ErrMenuInvalidInput = errors.New("menu service: invalid input")
	// ErrMenuItemNotFound indicates the requested dish does not exist.
	ErrMenuItemNotFound = errors.New("menu service: not found")
	// ErrMenuUploadsDisabled indicates no storage signer is configured.
	ErrMenuUploadsDisabled = errors.New("menu service: image uploads not configured")
	// ErrMenuUnavailable indicates the backend could not fulfil the request.
	ErrMenuUnavailable = errors.New("menu service: unavailable")
)

const maxMenuImageSize = 5 * 1024 * 1024

// uploadURLIssuer abstracts the storage client for signed menu image uploads.
type uploadURLIssuer interface {
	UploadURL(ctx context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedUploadURL, error)
}

// MenuServiceDeps wires the repository and upload signing dependencies.
type MenuServiceDeps struct {
	Menu        repositories.MenuRepository
	Uploads     uploadURLIssuer
	ImageBucket string
	UploadTTL   time.Duration
	Sanitizer   *bluemonday.Policy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type menuService struct {
	menu        repositories.MenuRepository
	uploads     uploadURLIssuer
	imageBucket string
	uploadTTL   time.Duration
	sanitizer   *bluemonday.Policy
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewMenuService constructs a MenuService enforcing dependency validation.
func NewMenuService(deps MenuServiceDeps) (MenuService, error) {
	if deps.Menu == nil {
		return nil, errMenuRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errMenuClockRequired
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.UGCPolicy()
	}

	uploadTTL := deps.UploadTTL
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "itm_" + ulid.Make().String() }
	}

	return &menuService{
		menu:        deps.Menu,
		uploads:     deps.Uploads,
		imageBucket: strings.TrimSpace(deps.ImageBucket),
		uploadTTL:   uploadTTL,
		sanitizer:   sanitizer,
		now:         func() time.Time { return deps.Clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

// Create adds a dish to the menu. The description is sanitised so stored
// markup is safe to render verbatim on the storefront.
func (s *menuService) Create(ctx context.Context, cmd CreateMenuItemCommand) (MenuItem, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return MenuItem{}, fmt.Errorf("%w: name is required", ErrMenuInvalidInput)
	}
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		return MenuItem{}, fmt.Errorf("%w: category is required", ErrMenuInvalidInput)
	}
	if cmd.Price <= 0 {
		return MenuItem{}, fmt.Errorf("%w: price must be greater than zero", ErrMenuInvalidInput)
	}

	available := true
	if cmd.Available != nil {
		available = *cmd.Available
	}

	now := s.now()
	item := domain.MenuItem{
		ID:          s.newID(),
		Name:        name,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Category:    category,
		Price:       cmd.Price,
		Available:   available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.menu.Insert(ctx, item); err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}

	s.logger(ctx, "menu.item_created", map[string]any{
		"itemID":   item.ID,
		"category": category,
	})
	return item, nil
}

// Update patches an existing dish. Nil fields are left untouched.
func (s *menuService) Update(ctx context.Context, cmd UpdateMenuItemCommand) (MenuItem, error) {
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return MenuItem{}, fmt.Errorf("%w: item id is required", ErrMenuInvalidInput)
	}

	item, err := s.menu.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return MenuItem{}, fmt.Errorf("%w: name cannot be empty", ErrMenuInvalidInput)
		}
		item.Name = name
	}
	if cmd.Description != nil {
		item.Description = s.sanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Category != nil {
		category := strings.TrimSpace(*cmd.Category)
		if category == "" {
			return MenuItem{}, fmt.Errorf("%w: category cannot be empty", ErrMenuInvalidInput)
		}
		item.Category = category
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return MenuItem{}, fmt.Errorf("%w: price must be greater than zero", ErrMenuInvalidInput)
		}
		item.Price = *cmd.Price
	}
	if cmd.Available != nil {
		item.Available = *cmd.Available
	}

	item.UpdatedAt = s.now()
	if err := s.menu.Update(ctx, item); err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}
	return item, nil
}

// Delete removes a dish.
func (s *menuService) Delete(ctx context.Context, itemID string) error {
	trimmed := strings.TrimSpace(itemID)
	if trimmed == "" {
		return fmt.Errorf("%w: item id is required", ErrMenuInvalidInput)
	}
	if err := s.menu.Delete(ctx, trimmed); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "menu.item_deleted", map[string]any{"itemID": trimmed})
	return nil
}

// Get loads a single dish.
func (s *menuService) Get(ctx context.Context, itemID string) (MenuItem, error) {
	trimmed := strings.TrimSpace(itemID)
	if trimmed == "" {
		return MenuItem{}, fmt.Errorf("%w: item id is required", ErrMenuInvalidInput)
	}
	item, err := s.menu.FindByID(ctx, trimmed)
	if err != nil {
		return MenuItem{}, s.translateRepoError(err)
	}
	return item, nil
}

// List returns menu items matching the query.
func (s *menuService) List(ctx context.Context, query MenuListQuery) ([]MenuItem, error) {
	items, err := s.menu.List(ctx, repositories.MenuListFilter{
		Category:      strings.TrimSpace(query.Category),
		AvailableOnly: query.AvailableOnly,
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// IssueImageUpload signs a one-shot PUT URL for the dish image and records
// the object path on the item.
func (s *menuService) IssueImageUpload(ctx context.Context, itemID, contentType string) (ImageUpload, error) {
	trimmed := strings.TrimSpace(itemID)
	if trimmed == "" {
		return ImageUpload{}, fmt.Errorf("%w: item id is required", ErrMenuInvalidInput)
	}
	if s.uploads == nil || s.imageBucket == "" {
		return ImageUpload{}, ErrMenuUploadsDisabled
	}

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ImageUpload{}, fmt.Errorf("%w: content type is required", ErrMenuInvalidInput)
	}

	if _, err := s.menu.FindByID(ctx, trimmed); err != nil {
		return ImageUpload{}, s.translateRepoError(err)
	}

	object := fmt.Sprintf("menu/%s/%s%s", trimmed, ulid.Make().String(), imageExtension(contentType))
	signed, err := s.uploads.UploadURL(ctx, s.imageBucket, object, storage.UploadOptions{
		ContentType:         contentType,
		AllowedContentTypes: []string{"image/*"},
		MaxSize:             maxMenuImageSize,
		ExpiresIn:           s.uploadTTL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeDenied) {
			return ImageUpload{}, fmt.Errorf("%w: %v", ErrMenuInvalidInput, err)
		}
		s.logger(ctx, "menu.upload_url_failed", map[string]any{
			"itemID": trimmed,
			"error":  err.Error(),
		})
		return ImageUpload{}, ErrMenuUnavailable
	}

	if err := s.menu.SetImagePath(ctx, trimmed, object, s.now()); err != nil {
		return ImageUpload{}, s.translateRepoError(err)
	}

	return ImageUpload{
		URL:        signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ObjectPath: object,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

func imageExtension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}

func (s *menuService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrMenuItemNotFound
	}
	return ErrMenuUnavailable
}
