package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/authflow"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/events"
	"github.com/ManuelReschke/ReportFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
	"github.com/ManuelReschke/ReportFox/internal/pkg/storage"
	"github.com/ManuelReschke/ReportFox/internal/pkg/tokenstore"
	"github.com/ManuelReschke/ReportFox/internal/pkg/watermark"
)

type linkRecorder struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (l *linkRecorder) set(kind, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[kind] = token
}

func (l *linkRecorder) get(kind string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[kind]
}

func (l *linkRecorder) SendVerification(_ context.Context, _ *models.User, token string) {
	l.set("verify", token)
}
func (l *linkRecorder) SendLoginLink(_ context.Context, _ *models.User, token string) {
	l.set("login", token)
}
func (l *linkRecorder) SendPasswordReset(_ context.Context, _ *models.User, token string) {
	l.set("reset", token)
}
func (l *linkRecorder) OrderCreated(context.Context, *models.User, *models.Order)     {}
func (l *linkRecorder) PaymentSucceeded(context.Context, *models.User, *models.Order) {}

type okCard struct{}

func (okCard) Charge(_ context.Context, in payment.CardCharge) (*payment.CardResult, error) {
	return &payment.CardResult{IntentID: "pi_" + in.OrderNumber, Status: payment.CardStatusSucceeded}, nil
}

type fakeRenderer struct {
	dir   string
	err   error
	out   string
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, report *models.Report, viewer *models.User) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.out = filepath.Join(f.dir, watermark.OutputName(report.SourceRef))
	body := "%PDF-1.4 licensed to " + viewer.Email
	return f.out, os.WriteFile(f.out, []byte(body), 0600)
}

type countingViews struct {
	mu    sync.Mutex
	views map[uint]int
}

func (c *countingViews) AddReportView(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[id]++
	return nil
}

type apiHarness struct {
	app      *fiber.App
	db       *gorm.DB
	repos    *repository.Repositories
	sessions *session.Manager
	links    *linkRecorder
	renderer *fakeRenderer
	views    *countingViews
	store    *storage.LocalStore
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	sessions := session.NewManager("controller-test-secret", time.Hour, 24*time.Hour, session.NewMemoryRevocations())
	links := &linkRecorder{tokens: map[string]string{}}

	auth := authflow.NewService(repos.User, tokenstore.NewMemoryStore(), sessions, links, authflow.TTLs{
		Verify: time.Hour, Login: time.Hour, Reset: time.Hour,
	})
	payments := payment.NewServiceFromDB(db, payment.Gateways{Card: okCard{}}, links, &events.MemoryPublisher{}, payment.Options{Currency: "kes"})
	ledger := entitlements.NewLedger(db)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h := &apiHarness{
		db:       db,
		repos:    repos,
		sessions: sessions,
		links:    links,
		renderer: &fakeRenderer{dir: t.TempDir()},
		views:    &countingViews{views: map[uint]int{}},
		store:    store,
	}

	ac := NewAuthController(auth)
	cc := NewClientController(repos, payments, ledger)
	vc := NewViewerController(repos.Report, ledger, h.renderer, h.views)
	cb := NewCallbackController(payments, time.Second)
	adm := NewAdminController(repos, store)

	app := fiber.New()
	app.Use(middleware.UserContextMiddleware(sessions))
	api := app.Group("/api")
	api.Post("/auth/register", ac.HandleRegister)
	api.Post("/auth/verify-email", ac.HandleVerifyEmail)
	api.Post("/auth/login", ac.HandleLogin)
	api.Post("/auth/token/refresh", ac.HandleRefresh)
	api.Post("/auth/logout", ac.HandleLogout)
	api.Get("/auth/profile", middleware.RequireAuth, ac.HandleProfile)
	api.Post("/auth/email", ac.HandleEmailLogin)
	api.Post("/auth/forgot-password", ac.HandleForgotPassword)

	client := api.Group("/client")
	client.Post("/mpesa/callback", cb.HandleMpesa)
	client.Get("/paystack/callback", cb.HandlePaystackCallback)
	client.Get("/reports", middleware.RequireAuth, cc.HandleListReports)
	client.Get("/reports/:id", middleware.RequireAuth, cc.HandleGetReport)
	client.Get("/reports/:id/viewer", middleware.RequireClient, middleware.ViewerHeaders, vc.HandleView)
	client.Post("/orders", middleware.RequireClient, cc.HandleCreateOrder)
	client.Get("/orders", middleware.RequireClient, cc.HandleListOrders)
	client.Get("/orders/:id", middleware.RequireClient, cc.HandleGetOrder)
	client.Post("/orders/:id/pay", middleware.RequireClient, cc.HandlePay)
	client.Get("/purchases", middleware.RequireClient, cc.HandlePurchases)
	client.Get("/dashboard", middleware.RequireClient, cc.HandleDashboard)

	admin := api.Group("/admin", middleware.RequireManagement)
	admin.Post("/reports", adm.HandleCreateReport)
	admin.Patch("/reports/:id", adm.HandleUpdateReport)
	admin.Get("/orders", adm.HandleListOrders)
	admin.Get("/revenue", adm.HandleRevenue)

	h.app = app
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (h *apiHarness) user(t *testing.T, email, profile string) (*models.User, string) {
	t.Helper()
	u, err := models.NewUser("Jane Doe", email, "s3cret-pass")
	require.NoError(t, err)
	u.Status = models.STATUS_ACTIVE
	require.NoError(t, h.repos.User.CreateWithProfile(u, &models.Profile{Type: profile}))
	pair, err := h.sessions.IssuePair(u)
	require.NoError(t, err)
	return u, pair.Access
}

func (h *apiHarness) report(t *testing.T, title string, price int64) *models.Report {
	t.Helper()
	r := &models.Report{Title: title, Category: "energy", PriceCents: price, Active: true, SourceRef: "reports/" + title + ".pdf"}
	require.NoError(t, h.repos.Report.Create(r))
	return r
}

func TestAuthFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Jane Doe", "email": "jane@example.com", "password": "long-enough-pw",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := h.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Jane Doe", "email": "jane@example.com", "password": "long-enough-pw",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "email already registered", body["error"])

	resp, body = h.do(t, fiber.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "jane@example.com", "password": "long-enough-pw",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "unverified accounts cannot log in")
	assert.Equal(t, "account not verified", body["error"])

	resp, body = h.do(t, fiber.MethodPost, "/api/auth/verify-email", "", map[string]string{
		"token": h.links.get("verify"), "email": "jane@example.com",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	access := body["access"].(string)
	refresh := body["refresh"].(string)

	resp, body = h.do(t, fiber.MethodGet, "/api/auth/profile", access, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PROFILE_CLIENT, body["profile_type"])
	assert.Equal(t, true, body["is_client"])
	assert.Equal(t, false, body["is_management"])

	resp, body = h.do(t, fiber.MethodPost, "/api/auth/token/refresh", "", map[string]string{"refresh": refresh})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	rotated := body["refresh"].(string)

	resp, _ = h.do(t, fiber.MethodPost, "/api/auth/logout", "", map[string]string{"refresh": rotated})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, fiber.MethodPost, "/api/auth/token/refresh", "", map[string]string{"refresh": rotated})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestLinkRequestsDoNotRevealAccounts(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{"/api/auth/email", "/api/auth/forgot-password"} {
		resp, body := h.do(t, fiber.MethodPost, path, "", map[string]string{"email": "ghost@example.com"})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
		assert.Equal(t, genericLinkMessage, body["message"], path)
	}
	assert.Empty(t, h.links.get("login"))
	assert.Empty(t, h.links.get("reset"))
}

func TestPurchaseAndViewReport(t *testing.T) {
	h := newAPIHarness(t)
	_, token := h.user(t, "buyer@example.com", models.PROFILE_CLIENT)
	alpha := h.report(t, "alpha", 10000)
	beta := h.report(t, "beta", 25000)

	resp, body := h.do(t, fiber.MethodGet, "/api/client/reports/"+itoa(alpha.ID), token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["has_purchased"])
	assert.NotContains(t, body, "source_ref")

	resp, body = h.do(t, fiber.MethodPost, "/api/client/orders", token, map[string]interface{}{
		"report_ids": []uint{alpha.ID, beta.ID, alpha.ID},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(35000), body["total_cents"])
	assert.Equal(t, "350.00", body["total_price"])
	orderID := uint(body["order_id"].(float64))

	resp, _ = h.do(t, fiber.MethodGet, "/api/client/reports/"+itoa(alpha.ID)+"/viewer", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "no access before payment")
	assert.Zero(t, h.renderer.calls, "source is not rendered without an entitlement")

	resp, body = h.do(t, fiber.MethodPost, "/api/client/orders/"+itoa(orderID)+"/pay", token, map[string]string{
		"payment_method": models.METHOD_CARD,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "card needs a payment method id: %v", body)

	resp, body = h.do(t, fiber.MethodPost, "/api/client/orders/"+itoa(orderID)+"/pay", token, map[string]string{
		"payment_method": models.METHOD_CARD, "payment_method_id": "pm_card_visa",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "%v", body)

	resp, body = h.do(t, fiber.MethodPost, "/api/client/orders/"+itoa(orderID)+"/pay", token, map[string]string{
		"payment_method": models.METHOD_CARD, "payment_method_id": "pm_card_visa",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, "%v", body)

	resp, body = h.do(t, fiber.MethodGet, "/api/client/purchases", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	resp, body = h.do(t, fiber.MethodGet, "/api/client/dashboard", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total_reports_purchased"])
	assert.Equal(t, float64(35000), body["total_spent_cents"])

	req := httptest.NewRequest(fiber.MethodGet, "/api/client/reports/"+itoa(alpha.ID)+"/viewer", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	vresp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, vresp.StatusCode)
	pdf, err := io.ReadAll(vresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(pdf), "licensed to buyer@example.com")
	assert.Equal(t, "application/pdf", vresp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, `inline; filename="alpha.pdf"`, vresp.Header.Get(fiber.HeaderContentDisposition))
	assert.Equal(t, "no-store", vresp.Header.Get(fiber.HeaderCacheControl))
	assert.Contains(t, vresp.Header.Get(fiber.HeaderContentSecurityPolicy), "default-src 'self'")

	_, statErr := os.Stat(h.renderer.out)
	assert.True(t, os.IsNotExist(statErr), "rendered copy is removed after streaming")
	assert.Equal(t, 1, h.views.views[alpha.ID])
}

func TestViewerWithoutEntitlementNeverRenders(t *testing.T) {
	h := newAPIHarness(t)
	owner, _ := h.user(t, "owner@example.com", models.PROFILE_CLIENT)
	_, token := h.user(t, "other@example.com", models.PROFILE_CLIENT)
	r := h.report(t, "alpha", 10000)
	_, err := entitlements.NewLedger(h.db).Grant(context.Background(), owner.ID, r.ID, 0)
	require.NoError(t, err)

	for _, id := range []uint{r.ID, 4242} {
		resp, body := h.do(t, fiber.MethodGet, "/api/client/reports/"+itoa(id)+"/viewer", token, nil)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "report %d", id)
		assert.Equal(t, "you have not purchased this report", body["error"])
	}
	assert.Zero(t, h.renderer.calls)
	assert.Empty(t, h.views.views)
}

func TestOrderDetailShowsPaymentState(t *testing.T) {
	h := newAPIHarness(t)
	_, token := h.user(t, "buyer@example.com", models.PROFILE_CLIENT)
	_, otherToken := h.user(t, "other@example.com", models.PROFILE_CLIENT)
	alpha := h.report(t, "alpha", 10000)

	resp, body := h.do(t, fiber.MethodPost, "/api/client/orders", token, map[string]interface{}{"report_ids": []uint{alpha.ID}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	path := "/api/client/orders/" + itoa(uint(body["order_id"].(float64)))

	resp, body = h.do(t, fiber.MethodGet, path, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ORDER_PENDING, body["status"])
	assert.Nil(t, body["payment"])

	resp, _ = h.do(t, fiber.MethodGet, path, otherToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "foreign orders are invisible")

	resp, _ = h.do(t, fiber.MethodPost, path+"/pay", token, map[string]string{
		"payment_method": models.METHOD_CARD, "payment_method_id": "pm_card_visa",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = h.do(t, fiber.MethodGet, path, token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ORDER_PAID, body["status"])
	pay, ok := body["payment"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, pay["confirmed"])
	assert.Equal(t, models.METHOD_CARD, pay["payment_method"])
}

func TestViewerRenderFailureIsGeneric(t *testing.T) {
	h := newAPIHarness(t)
	u, token := h.user(t, "buyer@example.com", models.PROFILE_CLIENT)
	r := h.report(t, "alpha", 10000)
	ledger := entitlements.NewLedger(h.db)
	_, err := ledger.Grant(context.Background(), u.ID, r.ID, 0)
	require.NoError(t, err)

	for _, renderErr := range []error{watermark.ErrSourceMissing, errors.New("/srv/media/reports/alpha.pdf: boom")} {
		h.renderer.err = renderErr
		resp, body := h.do(t, fiber.MethodGet, "/api/client/reports/"+itoa(r.ID)+"/viewer", token, nil)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, unableToServe, body["error"])
	}
	assert.Zero(t, h.views.views[r.ID])
}

func TestClientOnlyRoutes(t *testing.T) {
	h := newAPIHarness(t)
	_, staff := h.user(t, "staff@example.com", models.PROFILE_MANAGEMENT)
	_, client := h.user(t, "client@example.com", models.PROFILE_CLIENT)

	resp, _ := h.do(t, fiber.MethodPost, "/api/client/orders", staff, map[string]interface{}{"report_ids": []uint{1}})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, fiber.MethodGet, "/api/client/orders", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, fiber.MethodGet, "/api/admin/orders", client, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := h.do(t, fiber.MethodPost, "/api/client/orders", client, map[string]interface{}{"report_ids": []uint{}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = h.do(t, fiber.MethodPost, "/api/client/orders/999/pay", client, map[string]string{"payment_method": models.METHOD_CARD})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCallbacksAlwaysAcknowledge(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/client/mpesa/callback", bytes.NewReader([]byte("not json")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, string(raw))

	resp, body := h.do(t, fiber.MethodGet, "/api/client/paystack/callback?reference=ORD-UNKNOWN", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestAdminReportUploadAndEdit(t *testing.T) {
	h := newAPIHarness(t)
	_, staff := h.user(t, "staff@example.com", models.PROFILE_MANAGEMENT)

	upload := func(filename string, content []byte, price string) (*http.Response, map[string]interface{}) {
		body, ctype := multipartUpload(t, map[string]string{
			"title": "Energy Outlook 2025", "category": "energy", "price_cents": price,
		}, filename, content)
		req := httptest.NewRequest(fiber.MethodPost, "/api/admin/reports", body)
		req.Header.Set(fiber.HeaderContentType, ctype)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+staff)
		resp, err := h.app.Test(req, -1)
		require.NoError(t, err)
		out := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp, out
	}

	resp, body := upload("notes.txt", []byte("plain text"), "5000")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "file is not a PDF document", body["error"])

	resp, _ = upload("outlook.pdf", []byte("%PDF-1.4 fake"), "-1")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = upload("../../outlook 2025.pdf", []byte("%PDF-1.4 fake"), "5000")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, "%v", body)
	assert.NotContains(t, body, "source_ref")
	id := uint(body["id"].(float64))

	stored, err := h.repos.Report.GetByID(id)
	require.NoError(t, err)
	assert.Regexp(t, `^reports/[0-9a-z]{26}_outlook_2025\.pdf$`, stored.SourceRef)
	ok, err := h.store.Exists(context.Background(), stored.SourceRef)
	require.NoError(t, err)
	assert.True(t, ok)

	resp, body = h.do(t, fiber.MethodPatch, "/api/admin/reports/"+itoa(id), staff, map[string]interface{}{
		"price_cents": 7500, "active": false,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "%v", body)
	assert.Equal(t, float64(7500), body["price_cents"])
	assert.Equal(t, false, body["active"])

	resp, _ = h.do(t, fiber.MethodPatch, "/api/admin/reports/"+itoa(id), staff, map[string]interface{}{"title": "x"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, fiber.MethodPatch, "/api/admin/reports/9999", staff, map[string]interface{}{"active": true})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminOrdersAndRevenue(t *testing.T) {
	h := newAPIHarness(t)
	buyer, _ := h.user(t, "buyer@example.com", models.PROFILE_CLIENT)
	_, staff := h.user(t, "staff@example.com", models.PROFILE_MANAGEMENT)

	now := time.Now()
	paid := models.Order{OrderNumber: "ORD-00000000000A", ClientID: buyer.ID, Status: models.ORDER_PAID, TotalCents: 12000}
	require.NoError(t, h.db.Create(&paid).Error)
	require.NoError(t, h.db.Create(&models.Order{OrderNumber: "ORD-00000000000B", ClientID: buyer.ID, Status: models.ORDER_PENDING, TotalCents: 5000}).Error)
	require.NoError(t, h.db.Create(&models.Transaction{OrderID: paid.ID, GatewayTransactionID: "pi_1", AmountCents: 12000, Method: models.METHOD_CARD, Confirmed: true, PaidAt: &now}).Error)

	resp, body := h.do(t, fiber.MethodGet, "/api/admin/orders?status=paid", staff, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = h.do(t, fiber.MethodGet, "/api/admin/orders", staff, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	resp, _ = h.do(t, fiber.MethodGet, "/api/admin/orders?status=refunded", staff, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, fiber.MethodGet, "/api/admin/revenue?months=3", staff, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(12000), body["total_cents"])
	assert.Len(t, body["months"], 1)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return respondError(c, apperrors.Internal("open /srv/secret.pdf", errors.New("permission denied")))
	})
	app.Get("/declined", func(c *fiber.Ctx) error {
		return respondError(c, apperrors.Declined("card declined"))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"an unexpected error occurred"}`, string(raw))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/declined", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2024, 5, 1, 12, 34, 56, 0, time.Local)
	assert.Equal(t, now.UTC().Format(time.RFC3339), formatTimePtr(&now))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
