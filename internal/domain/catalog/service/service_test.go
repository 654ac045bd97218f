package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	"github.com/vadim/neo-gateway/internal/storage"
)

type fakeItems struct {
	items []entity.Item
}

func (f *fakeItems) Create(_ context.Context, item *entity.Item) error {
	for _, it := range f.items {
		if it.TenantID == item.TenantID && it.SKU == item.SKU {
			return entity.ErrItemExists
		}
	}
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeItems) Update(_ context.Context, item *entity.Item) error {
	for i, it := range f.items {
		if it.ID == item.ID {
			f.items[i] = *item
			return nil
		}
	}
	return entity.ErrItemNotFound
}

func (f *fakeItems) GetByID(_ context.Context, tenantID, id string) (*entity.Item, error) {
	for _, it := range f.items {
		if it.ID == id && it.TenantID == tenantID {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeItems) FindActive(_ context.Context, tenantID, ref string) (*entity.Item, error) {
	for _, it := range f.items {
		if it.TenantID == tenantID && it.Active && it.Matches(ref) {
			cp := it
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeItems) ListActive(_ context.Context, tenantID string, limit int) ([]entity.Item, error) {
	var out []entity.Item
	for _, it := range f.items {
		if it.TenantID == tenantID && it.Active && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeItems) List(_ context.Context, tenantID string, _, _ int) ([]entity.Item, error) {
	var out []entity.Item
	for _, it := range f.items {
		if it.TenantID == tenantID {
			out = append(out, it)
		}
	}
	return out, nil
}

type fakeCarts struct {
	qty map[string]int
}

func (f *fakeCarts) AddItem(_ context.Context, conversationID, itemID string) (int, error) {
	f.qty[conversationID+"|"+itemID]++
	return f.qty[conversationID+"|"+itemID], nil
}

func (f *fakeCarts) Lines(_ context.Context, _ string) ([]entity.CartLine, error) {
	return nil, nil
}

type fakeMedia struct {
	assets []entity.MediaAsset
}

func (f *fakeMedia) Create(_ context.Context, a *entity.MediaAsset) error {
	f.assets = append(f.assets, *a)
	return nil
}

func (f *fakeMedia) GetByRef(_ context.Context, tenantID, ref string) (*entity.MediaAsset, error) {
	for _, a := range f.assets {
		if a.TenantID == tenantID && strings.EqualFold(a.Ref, ref) {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMedia) List(_ context.Context, _ string) ([]entity.MediaAsset, error) {
	return f.assets, nil
}

func (f *fakeMedia) Delete(_ context.Context, _, id string) error {
	for i, a := range f.assets {
		if a.ID == id {
			f.assets = append(f.assets[:i], f.assets[i+1:]...)
			return nil
		}
	}
	return entity.ErrMediaNotFound
}

type fakeObjects struct {
	keys    map[string]bool
	headErr error
}

func (f *fakeObjects) Upload(_ context.Context, in storage.UploadInput) (*storage.UploadOutput, error) {
	key := "tenants/" + in.TenantID + "/" + in.Filename
	f.keys[key] = true
	return &storage.UploadOutput{Key: key, URL: "https://cdn.example/" + key, Size: in.Size}, nil
}

func (f *fakeObjects) Exists(_ context.Context, key string) (bool, error) {
	if f.headErr != nil {
		return false, f.headErr
	}
	return f.keys[key], nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func newTestService() (*Service, *fakeItems, *fakeMedia, *fakeObjects) {
	items := &fakeItems{}
	media := &fakeMedia{}
	objects := &fakeObjects{keys: map[string]bool{}}
	return New(items, &fakeCarts{qty: map[string]int{}}, media, objects), items, media, objects
}

func TestCreateItem(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: " W-1 ", Name: "Widget", PriceMinor: 10000, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "W-1", item.SKU)
	assert.Equal(t, "USD", item.Currency)
	assert.True(t, item.Active)

	_, err = svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: "W-1", Name: "Other"})
	assert.ErrorIs(t, err, entity.ErrItemExists)

	_, err = svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: "", Name: "x"})
	assert.ErrorIs(t, err, entity.ErrEmptySKU)

	_, err = svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: "x", Name: "x", PriceMinor: -1})
	assert.ErrorIs(t, err, entity.ErrNegativePrice)
}

func TestUpdateItemDeactivates(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: "W-1", Name: "Widget"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateItem(ctx, UpdateItemInput{TenantID: "t1", ID: item.ID, Active: &inactive})
	require.NoError(t, err)

	_, err = svc.FindActiveItem(ctx, "t1", "widget")
	assert.ErrorIs(t, err, entity.ErrItemNotFound)

	_, err = svc.UpdateItem(ctx, UpdateItemInput{TenantID: "t2", ID: item.ID, Active: &inactive})
	assert.ErrorIs(t, err, entity.ErrItemNotFound)
}

func TestUploadAndResolveMedia(t *testing.T) {
	svc, _, _, objects := newTestService()
	ctx := context.Background()

	asset, err := svc.UploadMedia(ctx, UploadMediaInput{
		TenantID:    "t1",
		Ref:         "blue-widget",
		Reader:      strings.NewReader("png"),
		ContentType: "image/png",
		Size:        3,
		Filename:    "blue.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "blue-widget", asset.Ref)

	url, err := svc.ResolveImage(ctx, "t1", "Blue-Widget")
	require.NoError(t, err)
	assert.Equal(t, asset.URL, url)

	// object removed from the bucket behind the library's back
	delete(objects.keys, asset.ObjectKey)
	_, err = svc.ResolveImage(ctx, "t1", "blue-widget")
	assert.ErrorIs(t, err, entity.ErrMediaNotFound)

	_, err = svc.ResolveImage(ctx, "t2", "blue-widget")
	assert.ErrorIs(t, err, entity.ErrMediaNotFound)
}

func TestUploadMediaValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.UploadMedia(ctx, UploadMediaInput{TenantID: "t1", Ref: "doc", ContentType: "application/pdf"})
	assert.ErrorIs(t, err, entity.ErrUnsupportedMedia)

	_, err = svc.UploadMedia(ctx, UploadMediaInput{TenantID: "t1", Ref: " ", ContentType: "image/png"})
	assert.ErrorIs(t, err, entity.ErrEmptyRef)

	_, err = svc.UploadMedia(ctx, UploadMediaInput{TenantID: "t1", Ref: "a", ContentType: "image/png", Reader: strings.NewReader("x"), Filename: "a.png"})
	require.NoError(t, err)
	_, err = svc.UploadMedia(ctx, UploadMediaInput{TenantID: "t1", Ref: "A", ContentType: "image/png", Reader: strings.NewReader("x"), Filename: "b.png"})
	assert.ErrorIs(t, err, entity.ErrMediaExists)

	noStorage := New(&fakeItems{}, &fakeCarts{}, &fakeMedia{}, nil)
	_, err = noStorage.UploadMedia(ctx, UploadMediaInput{TenantID: "t1", Ref: "a", ContentType: "image/png"})
	assert.ErrorIs(t, err, entity.ErrStorageDisabled)
}

func TestResolveImageFallsBackToItemImage(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{TenantID: "t1", SKU: "W-1", Name: "Widget", ImageRef: "https://cdn.example/widget.jpg"})
	require.NoError(t, err)

	url, err := svc.ResolveImage(ctx, "t1", "widget")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/widget.jpg", url)

	_, err = svc.ResolveImage(ctx, "t1", "gadget")
	assert.ErrorIs(t, err, entity.ErrMediaNotFound)
}

func TestResolveImageStorageError(t *testing.T) {
	svc, _, media, objects := newTestService()
	media.assets = append(media.assets, entity.MediaAsset{ID: "m1", TenantID: "t1", Ref: "logo", ObjectKey: "k"})
	objects.headErr = errors.New("s3 unreachable")

	_, err := svc.ResolveImage(context.Background(), "t1", "logo")
	require.Error(t, err)
	assert.NotErrorIs(t, err, entity.ErrMediaNotFound)
}

func TestAddToCartAccumulates(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	qty, err := svc.AddToCart(ctx, "conv-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	qty, err = svc.AddToCart(ctx, "conv-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
}
