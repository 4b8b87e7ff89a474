package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/service"
	"magiainterna/backend/internal/store/memory"
)

const (
	testAdminPassword = "clave-admin-pruebas"
	testStaffPassword = "clave-staff-pruebas"
)

// newTestAPI wires the real service and auth manager over an in-memory store
// so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Logger: zap.NewNop()})
	auth, err := NewAuthManager("test-secret-key-with-32-characters", time.Hour, repo, zap.NewNop())
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if err := auth.EnsureAdmin(context.Background(), "admin", testAdminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if _, err := auth.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "vendedora", Password: testStaffPassword}); err != nil {
		t.Fatalf("create staff: %v", err)
	}

	api, err := New(svc, auth, "*", zap.NewNop())
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return api
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: testAdminPassword})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid credentials") {
		t.Fatalf("expected generic error, got %s", rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products", "", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "vendedora", testStaffPassword)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 7 {
		t.Fatalf("expected seeded products, got %d", len(body.Products))
	}

	rec = doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products/prod-missing", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing product, got %d", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "vendedora", testStaffPassword)
	csrf := fetchCSRFToken(t, api)

	quote := doJSON(t, handler, http.MethodPost, "/api/v1/sales/quote", token, csrf, domain.SaleCreateRequest{
		TaxAmount:      5000,
		DiscountAmount: 2000,
		DeliveryFee:    3000,
		Items:          []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 2, UnitPrice: 50000}},
	})
	if quote.Code != http.StatusOK {
		t.Fatalf("quote expected 200, got %d (body: %s)", quote.Code, quote.Body.String())
	}
	var quoted struct {
		Quote domain.SaleQuote `json:"quote"`
	}
	if err := json.NewDecoder(quote.Body).Decode(&quoted); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quoted.Quote.TotalAmount != 106000 {
		t.Fatalf("expected quote total 106000, got %d", quoted.Quote.TotalAmount)
	}

	created := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleCreateRequest{
		PaymentMethod: "transferencia",
		Items:         []domain.SaleItemInput{{ProductID: "prod-collar-luna", Quantity: 3}},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d (body: %s)", created.Code, created.Body.String())
	}

	oversell := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleCreateRequest{
		PaymentMethod: "efectivo",
		Items:         []domain.SaleItemInput{{ProductID: "prod-collar-luna", Quantity: 1}},
	})
	if oversell.Code != http.StatusConflict {
		t.Fatalf("expected 409 once stock is gone, got %d (body: %s)", oversell.Code, oversell.Body.String())
	}

	list := doJSON(t, handler, http.MethodGet, "/api/v1/sales?page=1&page_size=5", token, "", nil)
	var page domain.SaleListResponse
	if err := json.NewDecoder(list.Body).Decode(&page); err != nil {
		t.Fatalf("decode sales page: %v", err)
	}
	if page.Total != 1 || page.PageSize != 5 {
		t.Fatalf("unexpected sales page %+v", page)
	}

	invalid := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{"payment_method": "efectivo", "unknown": true})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", invalid.Code)
	}
}

func TestProfitExportFormats(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", testAdminPassword)

	csv := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/analytics/profit?period=year&year=2025&format=csv", token, "", nil)
	if csv.Code != http.StatusOK {
		t.Fatalf("csv expected 200, got %d (body: %s)", csv.Code, csv.Body.String())
	}
	if !strings.HasPrefix(csv.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected csv content type %s", csv.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(csv.Body.String(), "periodo,etiqueta,") {
		t.Fatalf("unexpected csv header %q", csv.Body.String())
	}

	xlsx := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/analytics/profit?period=year&year=2025&format=xlsx", token, "", nil)
	if xlsx.Code != http.StatusOK || xlsx.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("xlsx expected 200, got %d %s", xlsx.Code, xlsx.Header().Get("Content-Type"))
	}
	if !strings.Contains(xlsx.Header().Get("Content-Disposition"), "ganancias-year-2025-01-01-2025-12-31.xlsx") {
		t.Fatalf("unexpected disposition %s", xlsx.Header().Get("Content-Disposition"))
	}

	bad := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/analytics/profit?format=pdf", token, "", nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pdf, got %d", bad.Code)
	}
}

func TestReceiptUploadWithoutStorage(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "admin", testAdminPassword)
	csrf := fetchCSRFToken(t, api)

	created := doJSON(t, handler, http.MethodPost, "/api/v1/expenses", token, csrf, domain.ExpenseCreateRequest{
		Description: "Bolsas de papel",
		Amount:      85000,
		Category:    "insumos",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create expense expected 201, got %d (body: %s)", created.Code, created.Body.String())
	}
	var payload struct {
		Expense domain.Expense `json:"expense"`
	}
	if err := json.NewDecoder(created.Body).Decode(&payload); err != nil {
		t.Fatalf("decode expense: %v", err)
	}

	var form bytes.Buffer
	form.WriteString("--boundary\r\nContent-Disposition: form-data; name=\"file\"; filename=\"recibo.pdf\"\r\nContent-Type: application/pdf\r\n\r\n%PDF-1.4\r\n--boundary--\r\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/"+payload.Expense.ID+"/receipt", &form)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without receipt storage, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestLogoutEndsSession(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "vendedora", testStaffPassword)
	csrf := fetchCSRFToken(t, api)

	session := doJSON(t, handler, http.MethodGet, "/api/v1/auth/session", token, "", nil)
	if session.Code != http.StatusOK || !strings.Contains(session.Body.String(), `"username":"vendedora"`) {
		t.Fatalf("expected active session, got %d %s", session.Code, session.Body.String())
	}

	logout := doJSON(t, handler, http.MethodPost, "/api/v1/auth/logout", token, csrf, nil)
	if logout.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", logout.Code)
	}

	after := doJSON(t, handler, http.MethodGet, "/api/v1/auth/session", token, "", nil)
	if after.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", after.Code)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/nothing-here", "", "", nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "route not found") {
		t.Fatalf("expected json 404, got %d %s", rec.Code, rec.Body.String())
	}
}
