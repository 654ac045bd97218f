package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogentity "github.com/vadim/neo-gateway/internal/domain/catalog/entity"
	catalogservice "github.com/vadim/neo-gateway/internal/domain/catalog/service"
	"github.com/vadim/neo-gateway/internal/domain/tenant/entity"
	"github.com/vadim/neo-gateway/internal/domain/tenant/service"
)

type fakeTenantAdmin struct {
	created   []service.CreateTenantInput
	statuses  []service.SetStatusInput
	reassigns []service.ReassignChannelAccountInput
	err       error
}

func (f *fakeTenantAdmin) CreateTenant(_ context.Context, in service.CreateTenantInput) (*entity.Tenant, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &entity.Tenant{ID: "t-1", Name: in.Name, Status: entity.StatusActive}, nil
}

func (f *fakeTenantAdmin) GetTenant(_ context.Context, id string) (*entity.Tenant, error) {
	if id != "t-1" {
		return nil, entity.ErrTenantNotFound
	}
	return &entity.Tenant{ID: "t-1", Name: "Acme", Status: entity.StatusActive}, nil
}

func (f *fakeTenantAdmin) ListTenants(context.Context, int, int) ([]entity.Tenant, error) {
	return []entity.Tenant{{ID: "t-1"}}, nil
}

func (f *fakeTenantAdmin) SetStatus(_ context.Context, in service.SetStatusInput) (*entity.Tenant, error) {
	f.statuses = append(f.statuses, in)
	return &entity.Tenant{ID: in.TenantID, Status: in.Status}, nil
}

func (f *fakeTenantAdmin) UpdateProfile(_ context.Context, in service.UpdateProfileInput) (*entity.Tenant, error) {
	return &entity.Tenant{ID: in.TenantID}, nil
}

func (f *fakeTenantAdmin) RegisterChannelAccount(_ context.Context, in service.RegisterChannelAccountInput) (*entity.ChannelAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.ChannelAccount{ID: "acc-1", TenantID: in.TenantID, ChannelType: in.ChannelType, ExternalID: in.ExternalID}, nil
}

func (f *fakeTenantAdmin) ReassignChannelAccount(_ context.Context, in service.ReassignChannelAccountInput) (*entity.ChannelAccount, error) {
	f.reassigns = append(f.reassigns, in)
	if f.err != nil {
		return nil, f.err
	}
	return &entity.ChannelAccount{ID: in.AccountID, TenantID: in.TenantID}, nil
}

func (f *fakeTenantAdmin) UpdateAccessToken(context.Context, service.UpdateAccessTokenInput) error {
	return nil
}

func (f *fakeTenantAdmin) ListChannelAccounts(context.Context, string) ([]entity.ChannelAccount, error) {
	return nil, nil
}

func (f *fakeTenantAdmin) ListUnattributed(_ context.Context, filter entity.UnattributedFilter) ([]entity.UnattributedEvent, error) {
	return []entity.UnattributedEvent{{ID: "u-1", Status: filter.Status}}, nil
}

func (f *fakeTenantAdmin) DismissUnattributed(_ context.Context, _, id, _ string) error {
	if id != "u-1" {
		return entity.ErrUnattributedNotFound
	}
	return nil
}

func (f *fakeTenantAdmin) ListAudit(context.Context, string, int, int) ([]entity.AuditEntry, error) {
	return nil, nil
}

type fakeMediaLibrary struct {
	uploads []catalogservice.UploadMediaInput
	err     error
}

func (f *fakeMediaLibrary) UploadMedia(_ context.Context, in catalogservice.UploadMediaInput) (*catalogentity.MediaAsset, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, in)
	return &catalogentity.MediaAsset{ID: "m-1", TenantID: in.TenantID, Ref: in.Ref, URL: "https://cdn.example/x.png"}, nil
}

func (f *fakeMediaLibrary) ListMedia(context.Context, string) ([]catalogentity.MediaAsset, error) {
	return nil, nil
}

func (f *fakeMediaLibrary) DeleteMedia(_ context.Context, _, ref string) error {
	if ref != "logo" {
		return catalogentity.ErrMediaNotFound
	}
	return nil
}

func newAdminRouter(tenants TenantAdmin, media MediaLibrary) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdminToken("s3cret"))
		NewAdminHandler(tenants).RegisterRoutes(r)
		NewMediaHandler(media).RegisterRoutes(r)
	})
	return r
}

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set(ActorHeader, "ops@example.com")
	return req
}

func TestAdminRequiresToken(t *testing.T) {
	r := newAdminRouter(&fakeTenantAdmin{}, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/tenants", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmptyAdminTokenDisablesAPI(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireAdminToken("")).Get("/x", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTenant(t *testing.T) {
	tenants := &fakeTenantAdmin{}
	r := newAdminRouter(tenants, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants", `{"name":"Acme","agent_sender_ids":["agent-1"]}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got entity.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Acme", got.Name)
	require.Len(t, tenants.created, 1)
	assert.Equal(t, "ops@example.com", tenants.created[0].Actor)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants", `{"name":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants", `{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuspendAndActivate(t *testing.T) {
	tenants := &fakeTenantAdmin{}
	r := newAdminRouter(tenants, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants/t-1/suspend", `{"reason":"unpaid"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants/t-1/activate", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, tenants.statuses, 2)
	assert.Equal(t, entity.StatusSuspended, tenants.statuses[0].Status)
	assert.Equal(t, "unpaid", tenants.statuses[0].Reason)
	assert.Equal(t, entity.StatusActive, tenants.statuses[1].Status)
}

func TestRegisterChannelErrors(t *testing.T) {
	tenants := &fakeTenantAdmin{}
	r := newAdminRouter(tenants, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants/t-1/channels", `{"channel_type":"telegram","external_id":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants/t-1/channels", `{"channel_type":"whatsapp","external_id":"phone-1"}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	tenants.err = entity.ErrChannelAccountExists
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/tenants/t-1/channels", `{"channel_type":"whatsapp","external_id":"phone-1"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReassignChannel(t *testing.T) {
	tenants := &fakeTenantAdmin{}
	r := newAdminRouter(tenants, &fakeMediaLibrary{})

	target := "7f9c2d1e-3b4a-4c5d-8e6f-0a1b2c3d4e5f"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/channels/acc-1/reassign", `{"tenant_id":"`+target+`","reason":"sold page"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, tenants.reassigns, 1)
	assert.Equal(t, "acc-1", tenants.reassigns[0].AccountID)
	assert.Equal(t, target, tenants.reassigns[0].TenantID)

	tenants.err = entity.ErrSameTenant
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/channels/acc-1/reassign", `{"tenant_id":"`+target+`"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/channels/acc-1/reassign", `{"tenant_id":"not-a-uuid"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnattributedInbox(t *testing.T) {
	r := newAdminRouter(&fakeTenantAdmin{}, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodGet, "/admin/unattributed", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(entity.UnattributedPendingReview))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/unattributed/u-1/dismiss", `{"note":"spam"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodPost, "/admin/unattributed/u-404/dismiss", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, ref, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if ref != "" {
		require.NoError(t, mw.WriteField("ref", ref))
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="blue-widget.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func adminUpload(path string, body *bytes.Buffer, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestMediaUpload(t *testing.T) {
	media := &fakeMediaLibrary{}
	r := newAdminRouter(&fakeTenantAdmin{}, media)

	body, ct := multipartUpload(t, "", "image/png")
	req := adminUpload("/admin/tenants/t-1/media", body, ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, media.uploads, 1)
	assert.Equal(t, "blue-widget", media.uploads[0].Ref)
	assert.Equal(t, "t-1", media.uploads[0].TenantID)
	assert.Equal(t, "image/png", media.uploads[0].ContentType)

	media.err = catalogentity.ErrUnsupportedMedia
	body, ct = multipartUpload(t, "doc", "application/pdf")
	req = adminUpload("/admin/tenants/t-1/media", body, ct)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMediaDelete(t *testing.T) {
	r := newAdminRouter(&fakeTenantAdmin{}, &fakeMediaLibrary{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodDelete, "/admin/tenants/t-1/media/logo", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, adminRequest(http.MethodDelete, "/admin/tenants/t-1/media/missing", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
