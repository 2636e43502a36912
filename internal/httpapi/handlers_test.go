package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sealdesk/backend/internal/alerts"
	"sealdesk/backend/internal/domain"
	"sealdesk/backend/internal/service"
	"sealdesk/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	engine := alerts.NewEngine(nil, 0)
	svc := service.New(repo, engine, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, "739154", repo)

	return New(svc, auth, "*")
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

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
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleInvoices_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// postJSON performs an authenticated CSRF-protected POST and returns the recorder.
func postJSON(t *testing.T, api *API, token, csrf, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, api *API, token, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestInvoiceCreateCancelRestoreOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	createRec := postJSON(t, api, token, csrf, "/api/v1/invoices", domain.InvoiceCreateRequest{
		CustomerName:  "HTTP Client",
		PaymentMethod: domain.AccountCash,
		Items: []domain.InvoiceItemInput{
			{
				MaterialType:  domain.MaterialNBR,
				InnerDiameter: 20,
				OuterDiameter: 30,
				Height:        6,
				Quantity:      10,
				UnitPrice:     decimal.NewFromInt(25),
			},
		},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d (body: %s)", createRec.Code, createRec.Body.String())
	}
	var createBody struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&createBody); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	invoiceID := createBody.Invoice.ID
	if invoiceID == "" {
		t.Fatalf("expected invoice id in response")
	}

	cancelRec := postJSON(t, api, token, csrf, "/api/v1/invoices/"+invoiceID+"/cancel", domain.InvoiceCancelRequest{
		Reason:     "customer backed out",
		ManagerPIN: "739154",
	})
	if cancelRec.Code != http.StatusOK {
		t.Fatalf("cancel invoice: expected 200, got %d (body: %s)", cancelRec.Code, cancelRec.Body.String())
	}

	// The cancelled invoice stays addressable through its id.
	lookupRec := getJSON(t, api, token, "/api/v1/invoices/"+invoiceID)
	if lookupRec.Code != http.StatusOK {
		t.Fatalf("archived lookup: expected 200, got %d", lookupRec.Code)
	}
	var lookupBody map[string]any
	if err := json.NewDecoder(lookupRec.Body).Decode(&lookupBody); err != nil {
		t.Fatalf("decode archived lookup: %v", err)
	}
	if lookupBody["archived"] == nil {
		t.Fatalf("expected archived payload, got %v", lookupBody)
	}

	restoreRec := postJSON(t, api, token, csrf, "/api/v1/invoices/"+invoiceID+"/restore", domain.InvoiceRestoreRequest{
		ManagerPIN: "739154",
	})
	if restoreRec.Code != http.StatusOK {
		t.Fatalf("restore invoice: expected 200, got %d (body: %s)", restoreRec.Code, restoreRec.Body.String())
	}

	activeRec := getJSON(t, api, token, "/api/v1/invoices/"+invoiceID)
	if activeRec.Code != http.StatusOK {
		t.Fatalf("active lookup: expected 200, got %d", activeRec.Code)
	}
	var activeBody map[string]any
	if err := json.NewDecoder(activeRec.Body).Decode(&activeBody); err != nil {
		t.Fatalf("decode active lookup: %v", err)
	}
	if activeBody["invoice"] == nil {
		t.Fatalf("expected invoice payload after restore, got %v", activeBody)
	}
}

func TestInvoiceCancelRejectsWrongPIN(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, token, csrf, "/api/v1/invoices/inv-any/cancel", domain.InvoiceCancelRequest{
		Reason:     "test",
		ManagerPIN: "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}
}

func TestTreasuryAccountsRequireAdminRole(t *testing.T) {
	api := newTestAPI(t)
	staffToken := loginAs(t, api, "staff", "staff123")

	rec := getJSON(t, api, staffToken, "/api/v1/treasury/accounts")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff role, got %d", rec.Code)
	}

	adminToken := loginAsAdmin(t, api)
	rec = getJSON(t, api, adminToken, "/api/v1/treasury/accounts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin role, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["accounts"] == nil {
		t.Fatalf("expected accounts key, got %v", body)
	}
}

func TestPaymentOverHTTPSettlesDeferredInvoice(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	createRec := postJSON(t, api, token, csrf, "/api/v1/invoices", domain.InvoiceCreateRequest{
		CustomerName:  "Deferred HTTP Client",
		PaymentMethod: domain.AccountDeferred,
		Items: []domain.InvoiceItemInput{
			{Description: "service visit", Quantity: 1, UnitPrice: decimal.NewFromInt(400)},
		},
	})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d", createRec.Code)
	}
	var createBody struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	if err := json.NewDecoder(createRec.Body).Decode(&createBody); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	payRec := postJSON(t, api, token, csrf, "/api/v1/payments", domain.PaymentCreateRequest{
		InvoiceID:     createBody.Invoice.ID,
		Amount:        decimal.NewFromInt(150),
		PaymentMethod: domain.AccountInstapay,
	})
	if payRec.Code != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d (body: %s)", payRec.Code, payRec.Body.String())
	}

	listRec := getJSON(t, api, token, fmt.Sprintf("/api/v1/invoices/%s/payments", createBody.Invoice.ID))
	if listRec.Code != http.StatusOK {
		t.Fatalf("list payments: expected 200, got %d", listRec.Code)
	}
	var listBody struct {
		Payments []domain.Payment `json:"payments"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(listBody.Payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(listBody.Payments))
	}
}

func TestDailyWorkOrderRejectsBadDate(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := getJSON(t, api, token, "/api/v1/reports/daily-work-orders?date=31-12-2025")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestLowStockAlertsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := getJSON(t, api, token, "/api/v1/inventory/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body domain.LowStockAlertResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if body.GeneratedAt == "" {
		t.Fatalf("expected generated_at timestamp")
	}
}

func TestBackupRunWithoutBucketReturns400(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, token, csrf, "/api/v1/backup/run", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no bucket is configured, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
