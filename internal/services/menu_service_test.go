package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/savora/api/internal/domain"
	"github.com/savora/api/internal/platform/storage"
	"github.com/savora/api/internal/repositories"
)

type stubUploader struct {
	uploadFn func(context.Context, string, string, storage.UploadOptions) (storage.SignedUploadURL, error)
}

func (s *stubUploader) UploadURL(ctx context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedUploadURL, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, bucket, object, opts)
	}
	return storage.SignedUploadURL{URL: "https://storage.example/" + object, Method: "PUT"}, nil
}

func newTestMenuService(t *testing.T, deps MenuServiceDeps) MenuService {
	t.Helper()
	if deps.Menu == nil {
		deps.Menu = &stubMenuRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	svc, err := NewMenuService(deps)
	if err != nil {
		t.Fatalf("NewMenuService: %v", err)
	}
	return svc
}

func TestCreateSanitisesDescription(t *testing.T) {
	var inserted domain.MenuItem
	repo := &stubMenuRepo{
		insertFn: func(_ context.Context, item domain.MenuItem) error {
			inserted = item
			return nil
		},
	}
	svc := newTestMenuService(t, MenuServiceDeps{Menu: repo})

	item, err := svc.Create(context.Background(), CreateMenuItemCommand{
		Name:        "Greek salad",
		Description: `Fresh <b>feta</b><script>alert("x")</script>`,
		Category:    "Salad",
		Price:       1200,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if strings.Contains(inserted.Description, "script") {
		t.Errorf("script tag survived sanitisation: %q", inserted.Description)
	}
	if !strings.Contains(inserted.Description, "<b>feta</b>") {
		t.Errorf("benign markup should survive: %q", inserted.Description)
	}
	if !item.Available {
		t.Error("new items default to available")
	}
	if !strings.HasPrefix(item.ID, "itm_") {
		t.Errorf("unexpected id %q", item.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestMenuService(t, MenuServiceDeps{})

	cases := []CreateMenuItemCommand{
		{Category: "Salad", Price: 100},
		{Name: "Greek salad", Price: 100},
		{Name: "Greek salad", Category: "Salad"},
		{Name: "Greek salad", Category: "Salad", Price: -5},
	}
	for i, cmd := range cases {
		if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, ErrMenuInvalidInput) {
			t.Errorf("case %d: expected ErrMenuInvalidInput, got %v", i, err)
		}
	}
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	var updated domain.MenuItem
	repo := &stubMenuRepo{
		findFn: func(context.Context, string) (domain.MenuItem, error) {
			return domain.MenuItem{
				ID:          "itm_salad",
				Name:        "Greek salad",
				Description: "old",
				Category:    "Salad",
				Price:       1200,
				Available:   true,
			}, nil
		},
		updateFn: func(_ context.Context, item domain.MenuItem) error {
			updated = item
			return nil
		},
	}
	svc := newTestMenuService(t, MenuServiceDeps{Menu: repo})

	price := int64(1400)
	available := false
	item, err := svc.Update(context.Background(), UpdateMenuItemCommand{
		ItemID:    "itm_salad",
		Price:     &price,
		Available: &available,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.Price != 1400 || updated.Available {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.Name != "Greek salad" || updated.Description != "old" {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if !item.UpdatedAt.Equal(fixedClock()) {
		t.Errorf("unexpected UpdatedAt: %v", item.UpdatedAt)
	}
}

func TestUpdateUnknownItem(t *testing.T) {
	svc := newTestMenuService(t, MenuServiceDeps{})
	name := "New name"
	if _, err := svc.Update(context.Background(), UpdateMenuItemCommand{ItemID: "itm_ghost", Name: &name}); !errors.Is(err, ErrMenuItemNotFound) {
		t.Fatalf("expected ErrMenuItemNotFound, got %v", err)
	}
}

func TestIssueImageUploadRecordsObjectPath(t *testing.T) {
	var recordedPath string
	repo := &stubMenuRepo{
		findFn: func(context.Context, string) (domain.MenuItem, error) {
			return domain.MenuItem{ID: "itm_salad"}, nil
		},
		setImageFn: func(_ context.Context, _, path string, _ time.Time) error {
			recordedPath = path
			return nil
		},
	}
	var capturedOpts storage.UploadOptions
	uploads := &stubUploader{
		uploadFn: func(_ context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedUploadURL, error) {
			if bucket != "savora-menu" {
				t.Errorf("unexpected bucket %q", bucket)
			}
			capturedOpts = opts
			return storage.SignedUploadURL{
				URL:       "https://storage.example/" + object,
				Method:    "PUT",
				ExpiresAt: fixedClock().Add(15 * time.Minute),
			}, nil
		},
	}
	svc := newTestMenuService(t, MenuServiceDeps{Menu: repo, Uploads: uploads, ImageBucket: "savora-menu"})

	upload, err := svc.IssueImageUpload(context.Background(), "itm_salad", "image/png")
	if err != nil {
		t.Fatalf("IssueImageUpload: %v", err)
	}

	if !strings.HasPrefix(upload.ObjectPath, "menu/itm_salad/") || !strings.HasSuffix(upload.ObjectPath, ".png") {
		t.Errorf("unexpected object path %q", upload.ObjectPath)
	}
	if recordedPath != upload.ObjectPath {
		t.Errorf("image path not recorded on the item: %q vs %q", recordedPath, upload.ObjectPath)
	}
	if upload.Method != "PUT" {
		t.Errorf("unexpected method %q", upload.Method)
	}
	if capturedOpts.ContentType != "image/png" || capturedOpts.MaxSize != maxMenuImageSize {
		t.Errorf("unexpected upload options: %+v", capturedOpts)
	}
}

func TestIssueImageUploadWithoutSigner(t *testing.T) {
	svc := newTestMenuService(t, MenuServiceDeps{})
	if _, err := svc.IssueImageUpload(context.Background(), "itm_salad", "image/png"); !errors.Is(err, ErrMenuUploadsDisabled) {
		t.Fatalf("expected ErrMenuUploadsDisabled, got %v", err)
	}
}

func TestListPassesFilterThrough(t *testing.T) {
	var captured repositories.MenuListFilter
	repo := &stubMenuRepo{
		listFn: func(_ context.Context, filter repositories.MenuListFilter) ([]domain.MenuItem, error) {
			captured = filter
			return []domain.MenuItem{{ID: "itm_salad"}}, nil
		},
	}
	svc := newTestMenuService(t, MenuServiceDeps{Menu: repo})

	items, err := svc.List(context.Background(), MenuListQuery{Category: " Salad ", AvailableOnly: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if captured.Category != "Salad" || !captured.AvailableOnly {
		t.Errorf("unexpected filter: %+v", captured)
	}
}
