package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	"github.com/vadim/neo-gateway/internal/storage"
)

// ItemRepository defines the interface for catalog item storage
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) error
	Update(ctx context.Context, item *entity.Item) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Item, error)
	FindActive(ctx context.Context, tenantID, ref string) (*entity.Item, error)
	ListActive(ctx context.Context, tenantID string, limit int) ([]entity.Item, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]entity.Item, error)
}

// CartRepository defines the interface for cart storage
type CartRepository interface {
	AddItem(ctx context.Context, conversationID, itemID string) (int, error)
	Lines(ctx context.Context, conversationID string) ([]entity.CartLine, error)
}

// MediaRepository defines the interface for media library storage
type MediaRepository interface {
	Create(ctx context.Context, asset *entity.MediaAsset) error
	GetByRef(ctx context.Context, tenantID, ref string) (*entity.MediaAsset, error)
	List(ctx context.Context, tenantID string) ([]entity.MediaAsset, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ObjectStore defines the object storage the media library lives in
type ObjectStore interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Service manages catalog items, carts and the media library
type Service struct {
	items   ItemRepository
	carts   CartRepository
	media   MediaRepository
	objects ObjectStore
}

// New creates a new catalog service. objects may be nil when S3 is disabled;
// media refs then resolve from stored URLs without an existence check.
func New(items ItemRepository, carts CartRepository, media MediaRepository, objects ObjectStore) *Service {
	return &Service{
		items:   items,
		carts:   carts,
		media:   media,
		objects: objects,
	}
}

// CreateItemInput represents input for creating a catalog item
type CreateItemInput struct {
	TenantID   string
	SKU        string
	Name       string
	PriceMinor int64
	Currency   string
	ImageRef   string
	Active     *bool
}

// CreateItem adds an item to a tenant's catalog
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (*entity.Item, error) {
	item := &entity.Item{
		ID:         uuid.NewString(),
		TenantID:   in.TenantID,
		SKU:        strings.TrimSpace(in.SKU),
		Name:       strings.TrimSpace(in.Name),
		PriceMinor: in.PriceMinor,
		Currency:   strings.ToUpper(strings.TrimSpace(in.Currency)),
		ImageRef:   strings.TrimSpace(in.ImageRef),
		Active:     true,
	}
	if in.Active != nil {
		item.Active = *in.Active
	}
	if item.Currency == "" {
		item.Currency = "USD"
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	if err := s.items.Create(ctx, item); err != nil {
		if errors.Is(err, entity.ErrItemExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

// UpdateItemInput represents input for updating a catalog item; nil fields are kept
type UpdateItemInput struct {
	TenantID   string
	ID         string
	Name       *string
	PriceMinor *int64
	Currency   *string
	ImageRef   *string
	Active     *bool
}

// UpdateItem changes an existing item
func (s *Service) UpdateItem(ctx context.Context, in UpdateItemInput) (*entity.Item, error) {
	item, err := s.items.GetByID(ctx, in.TenantID, in.ID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if item == nil {
		return nil, entity.ErrItemNotFound
	}

	if in.Name != nil {
		item.Name = strings.TrimSpace(*in.Name)
	}
	if in.PriceMinor != nil {
		item.PriceMinor = *in.PriceMinor
	}
	if in.Currency != nil {
		item.Currency = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.ImageRef != nil {
		item.ImageRef = strings.TrimSpace(*in.ImageRef)
	}
	if in.Active != nil {
		item.Active = *in.Active
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}

	if err := s.items.Update(ctx, item); err != nil {
		if errors.Is(err, entity.ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating item: %w", err)
	}
	return item, nil
}

func validateItem(item *entity.Item) error {
	if item.SKU == "" {
		return entity.ErrEmptySKU
	}
	if item.Name == "" {
		return entity.ErrEmptyItemName
	}
	if item.PriceMinor < 0 {
		return entity.ErrNegativePrice
	}
	return nil
}

// ListItems returns a tenant's catalog
func (s *Service) ListItems(ctx context.Context, tenantID string, limit, offset int) ([]entity.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	items, err := s.items.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// ActiveItems returns up to limit sellable items
func (s *Service) ActiveItems(ctx context.Context, tenantID string, limit int) ([]entity.Item, error) {
	items, err := s.items.ListActive(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing active items: %w", err)
	}
	return items, nil
}

// FindActiveItem resolves an item by sku or name. It returns ErrItemNotFound
// when no active item matches.
func (s *Service) FindActiveItem(ctx context.Context, tenantID, ref string) (*entity.Item, error) {
	item, err := s.items.FindActive(ctx, tenantID, strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("finding item: %w", err)
	}
	if item == nil {
		return nil, entity.ErrItemNotFound
	}
	return item, nil
}

// AddToCart adds one unit of the item to the conversation's cart
func (s *Service) AddToCart(ctx context.Context, conversationID, itemID string) (int, error) {
	qty, err := s.carts.AddItem(ctx, conversationID, itemID)
	if err != nil {
		return 0, fmt.Errorf("adding to cart: %w", err)
	}
	return qty, nil
}

// Cart returns the current cart of a conversation
func (s *Service) Cart(ctx context.Context, conversationID string) ([]entity.CartLine, error) {
	lines, err := s.carts.Lines(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading cart: %w", err)
	}
	return lines, nil
}

// UploadMediaInput represents input for adding an image to the media library
type UploadMediaInput struct {
	TenantID    string
	Ref         string
	Reader      io.Reader
	ContentType string
	Size        int64
	Filename    string
}

// UploadMedia stores an image in object storage and registers it under ref
func (s *Service) UploadMedia(ctx context.Context, in UploadMediaInput) (*entity.MediaAsset, error) {
	if s.objects == nil {
		return nil, entity.ErrStorageDisabled
	}
	ref := strings.TrimSpace(in.Ref)
	if ref == "" {
		return nil, entity.ErrEmptyRef
	}
	if !storage.IsImageContentType(in.ContentType) {
		return nil, entity.ErrUnsupportedMedia
	}

	existing, err := s.media.GetByRef(ctx, in.TenantID, ref)
	if err != nil {
		return nil, fmt.Errorf("checking media ref: %w", err)
	}
	if existing != nil {
		return nil, entity.ErrMediaExists
	}

	out, err := s.objects.Upload(ctx, storage.UploadInput{
		TenantID:    in.TenantID,
		Reader:      in.Reader,
		ContentType: in.ContentType,
		Size:        in.Size,
		Filename:    in.Filename,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}

	asset := &entity.MediaAsset{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Ref:         ref,
		ObjectKey:   out.Key,
		ContentType: in.ContentType,
		URL:         out.URL,
		CreatedAt:   out.UploadedAt,
	}
	if err := s.media.Create(ctx, asset); err != nil {
		// the ref raced with another upload; drop the orphaned object
		_ = s.objects.Delete(ctx, out.Key)
		if errors.Is(err, entity.ErrMediaExists) {
			return nil, err
		}
		return nil, fmt.Errorf("registering media: %w", err)
	}
	return asset, nil
}

// ListMedia returns a tenant's media library
func (s *Service) ListMedia(ctx context.Context, tenantID string) ([]entity.MediaAsset, error) {
	assets, err := s.media.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	return assets, nil
}

// DeleteMedia removes a media asset and its object
func (s *Service) DeleteMedia(ctx context.Context, tenantID, ref string) error {
	asset, err := s.media.GetByRef(ctx, tenantID, ref)
	if err != nil {
		return fmt.Errorf("getting media: %w", err)
	}
	if asset == nil {
		return entity.ErrMediaNotFound
	}
	if s.objects != nil {
		if err := s.objects.Delete(ctx, asset.ObjectKey); err != nil {
			return err
		}
	}
	return s.media.Delete(ctx, tenantID, asset.ID)
}

// ResolveImage turns an image ref into a deliverable URL. The ref is looked up
// in the media library first, then as the image of an active catalog item.
// ErrMediaNotFound means nothing deliverable exists for the ref.
func (s *Service) ResolveImage(ctx context.Context, tenantID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", entity.ErrEmptyRef
	}

	url, err := s.resolveMedia(ctx, tenantID, ref)
	if err == nil || !errors.Is(err, entity.ErrMediaNotFound) {
		return url, err
	}

	item, err := s.items.FindActive(ctx, tenantID, ref)
	if err != nil {
		return "", fmt.Errorf("finding item image: %w", err)
	}
	if item == nil || item.ImageRef == "" {
		return "", entity.ErrMediaNotFound
	}
	if isURL(item.ImageRef) {
		return item.ImageRef, nil
	}
	return s.resolveMedia(ctx, tenantID, item.ImageRef)
}

func (s *Service) resolveMedia(ctx context.Context, tenantID, ref string) (string, error) {
	asset, err := s.media.GetByRef(ctx, tenantID, ref)
	if err != nil {
		return "", fmt.Errorf("getting media: %w", err)
	}
	if asset == nil {
		return "", entity.ErrMediaNotFound
	}
	if s.objects == nil {
		return asset.URL, nil
	}

	ok, err := s.objects.Exists(ctx, asset.ObjectKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", entity.ErrMediaNotFound
	}
	return asset.URL, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
