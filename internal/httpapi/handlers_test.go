package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bitikpos/backend/internal/ai"
	"bitikpos/backend/internal/cache"
	"bitikpos/backend/internal/domain"
	"bitikpos/backend/internal/service"
	"bitikpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, ai.NewSuggester(""), cache.NoopSuggestionCache{}, time.Hour)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// loginAs obtains an access token for the given seeded account.
func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON fires an authenticated request with a valid CSRF token attached.
func doJSON(t *testing.T, api *API, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
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

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute.
	// Fire 6 requests from the same "IP" (httptest uses RemoteAddr "192.0.2.1:1234").
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestProductCreate_SellerForbidden(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"name":     "Bougie parfumée",
		"category": "Hygiène",
		"price":    1200,
		"quantity": 10,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller creating product, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCashSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-the-01",
		"quantity":   2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", rec.Code, rec.Body.String())
	}

	var cartBody domain.CartResponse
	if err := json.NewDecoder(rec.Body).Decode(&cartBody); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(cartBody.Items) != 1 || cartBody.Subtotal != 3000 {
		t.Fatalf("unexpected cart %+v", cartBody)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d %s", rec.Code, rec.Body.String())
	}

	var saleBody struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	sale := saleBody.Sale
	if sale.InvoiceID != "FAC-00001" {
		t.Fatalf("expected invoice FAC-00001, got %s", sale.InvoiceID)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected status %s, got %s", domain.SaleStatusCompleted, sale.Status)
	}
	if sale.PaidAmount != sale.TotalPrice || sale.TotalPrice != 3000 {
		t.Fatalf("unexpected amounts paid=%d total=%d", sale.PaidAmount, sale.TotalPrice)
	}
	if sale.SellerUsername != "vendeur" {
		t.Fatalf("expected seller username on sale, got %q", sale.SellerUsername)
	}

	// The cart must be empty after a committed sale.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	cartRec := httptest.NewRecorder()
	handler.ServeHTTP(cartRec, req)
	var after domain.CartResponse
	if err := json.NewDecoder(cartRec.Body).Decode(&after); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(after.Items) != 0 {
		t.Fatalf("expected cart to be cleared, got %d items", len(after.Items))
	}
}

func TestSale_InsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-the-01",
		"quantity":   100000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentCash,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreditSale_RequiresCustomer(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-sucre-01",
		"quantity":   1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentCredit,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for credit sale without customer, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreditSaleAndPaymentFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-riz-01",
		"quantity":   1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentCredit,
		"customer_id":    "cust-moussa",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit sale failed: %d %s", rec.Code, rec.Body.String())
	}

	var saleBody struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	sale := saleBody.Sale
	if sale.Status != domain.SaleStatusCredit || sale.PaidAmount != 0 {
		t.Fatalf("unexpected credit sale %+v", sale)
	}

	// Over-payment must be refused.
	rec = doJSON(t, api, handler, http.MethodPost, fmt.Sprintf("/api/v1/sales/%s/payments", sale.ID), token, map[string]any{
		"amount":         sale.TotalPrice + 1000,
		"payment_method": domain.PaymentCash,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on over-payment, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Partial then final settlement.
	rec = doJSON(t, api, handler, http.MethodPost, fmt.Sprintf("/api/v1/sales/%s/payments", sale.ID), token, map[string]any{
		"amount":         2000,
		"payment_method": domain.PaymentCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("partial payment failed: %d %s", rec.Code, rec.Body.String())
	}
	var receiptBody struct {
		Payment domain.PaymentReceipt `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&receiptBody); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receiptBody.Payment.RemainingBalance != sale.TotalPrice-2000 {
		t.Fatalf("unexpected remaining %d", receiptBody.Payment.RemainingBalance)
	}
	if receiptBody.Payment.SaleStatus != domain.SaleStatusCredit {
		t.Fatalf("expected sale to stay in credit status, got %s", receiptBody.Payment.SaleStatus)
	}

	rec = doJSON(t, api, handler, http.MethodPost, fmt.Sprintf("/api/v1/sales/%s/payments", sale.ID), token, map[string]any{
		"amount":         sale.TotalPrice - 2000,
		"payment_method": domain.PaymentWave,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("final payment failed: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&receiptBody); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receiptBody.Payment.SaleStatus != domain.SaleStatusCompleted || receiptBody.Payment.RemainingBalance != 0 {
		t.Fatalf("expected settled sale, got %+v", receiptBody.Payment)
	}
}

func TestCustomerDeposit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/customers/cust-moussa/deposits", token, map[string]any{
		"amount": 5000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Deposit domain.DepositReceipt `json:"deposit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	if body.Deposit.NewBalance != 5000 {
		t.Fatalf("expected balance 5000, got %d", body.Deposit.NewBalance)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/customers/cust-moussa/deposits", token, map[string]any{
		"amount": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on zero deposit, got %d", rec.Code)
	}
}

func TestDebtsListing(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-huile-01",
		"quantity":   2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentCredit,
		"customer_id":    "cust-awa",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("credit sale failed: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/debts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	debtRec := httptest.NewRecorder()
	handler.ServeHTTP(debtRec, req)

	if debtRec.Code != http.StatusOK {
		t.Fatalf("debts failed: %d %s", debtRec.Code, debtRec.Body.String())
	}
	var debts domain.DebtsResponse
	if err := json.NewDecoder(debtRec.Body).Decode(&debts); err != nil {
		t.Fatalf("decode debts: %v", err)
	}
	if len(debts.Sales) != 1 || debts.OutstandingTotal != 2600 {
		t.Fatalf("unexpected debts %+v", debts)
	}
}

func TestVariantSaleThroughCart(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "vendeur", "vendeur123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/cart", token, map[string]any{
		"product_id": "prod-wax-01",
		"variant_id": "var-rouge",
		"quantity":   1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add variant to cart failed: %d %s", rec.Code, rec.Body.String())
	}
	var cartBody domain.CartResponse
	if err := json.NewDecoder(rec.Body).Decode(&cartBody); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if cartBody.Subtotal != 9500 {
		t.Fatalf("expected variant price 9500, got %d", cartBody.Subtotal)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"payment_method": domain.PaymentOrangeMoney,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("variant sale failed: %d %s", rec.Code, rec.Body.String())
	}

	var saleBody struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if len(saleBody.Sale.Items) != 1 || saleBody.Sale.Items[0].VariantName != "Rouge" {
		t.Fatalf("unexpected sale items %+v", saleBody.Sale.Items)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("stats failed: %d %s", rec.Code, rec.Body.String())
	}
	var stats domain.DashboardStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Date == "" {
		t.Fatalf("expected stats date to be set")
	}
}
