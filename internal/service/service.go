package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"bitikpos/backend/internal/ai"
	"bitikpos/backend/internal/cache"
	"bitikpos/backend/internal/domain"
	"bitikpos/backend/internal/store"
	"bitikpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	suggester       *ai.Suggester
	suggestionCache cache.SuggestionCache
	suggestionTTL   time.Duration
}

func New(repo store.Repository, suggester *ai.Suggester, suggestionCache cache.SuggestionCache, suggestionTTL time.Duration) *Service {
	if suggestionCache == nil {
		suggestionCache = cache.NoopSuggestionCache{}
	}
	if suggestionTTL <= 0 {
		suggestionTTL = time.Hour
	}

	return &Service{
		repo:            repo,
		suggester:       suggester,
		suggestionCache: suggestionCache,
		suggestionTTL:   suggestionTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" || req.Price < 1 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.BasePrice < 0 || req.ReorderThreshold < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	for _, v := range req.Variants {
		if strings.TrimSpace(v.Name) == "" || v.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
	}
	for _, pi := range req.PackItems {
		if pi.ProductID == "" || pi.Quantity < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		if _, err := s.repo.GetProductByID(ctx, pi.ProductID); err != nil {
			return domain.Product{}, fmt.Errorf("pack item %s: %w", pi.ProductID, err)
		}
	}

	product := domain.Product{
		Name:             req.Name,
		Description:      strings.TrimSpace(req.Description),
		Category:         req.Category,
		Price:            req.Price,
		BasePrice:        req.BasePrice,
		Quantity:         req.Quantity,
		ReorderThreshold: req.ReorderThreshold,
		Variants:         normalizeVariants(req.Variants),
		PackItems:        req.PackItems,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", created.ID, fmt.Sprintf("name=%s,price=%d,qty=%d", created.Name, created.Price, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.Price != nil {
		if *req.Price < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.BasePrice != nil {
		if *req.BasePrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.BasePrice = *req.BasePrice
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
	}
	if req.ReorderThreshold != nil {
		if *req.ReorderThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.ReorderThreshold = *req.ReorderThreshold
	}
	if req.Variants != nil {
		updated.Variants = normalizeVariants(*req.Variants)
	}
	if req.PackItems != nil {
		updated.PackItems = *req.PackItems
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", saved.ID, fmt.Sprintf("price=%d,qty=%d", saved.Price, saved.Quantity))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", id, "")
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryRequest) (domain.Category, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if id == "" || name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}
	updated, err := s.repo.UpdateCategory(ctx, domain.Category{ID: id, Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Balance < 0 {
		return domain.Customer{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    name,
		Phone:   strings.TrimSpace(req.Phone),
		Balance: req.Balance,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCustomer(ctx, id)
}

// AddDeposit credits a customer's store-credit balance and returns a
// deposit receipt for printing.
func (s *Service) AddDeposit(ctx context.Context, customerID string, req domain.DepositRequest) (domain.DepositReceipt, error) {
	if strings.TrimSpace(customerID) == "" {
		return domain.DepositReceipt{}, store.ErrInvalidInput
	}
	if req.Amount < 1 {
		return domain.DepositReceipt{}, store.ErrInvalidAmount
	}

	at := time.Now().UTC()
	updated, err := s.repo.AddDeposit(ctx, customerID, req.Amount, at)
	if err != nil {
		return domain.DepositReceipt{}, err
	}

	s.logAudit(ctx, "customer_deposit", customerID, fmt.Sprintf("amount=%d,balance=%d", req.Amount, updated.Balance))
	return domain.DepositReceipt{
		CustomerID:   updated.ID,
		CustomerName: updated.Name,
		Amount:       req.Amount,
		NewBalance:   updated.Balance,
		DepositedAt:  at,
	}, nil
}

func (s *Service) GetCompanyProfile(ctx context.Context) (domain.CompanyProfile, error) {
	profile, err := s.repo.GetCompanyProfile(ctx)
	if err != nil {
		return domain.CompanyProfile{}, err
	}
	return *profile, nil
}

func (s *Service) SaveCompanyProfile(ctx context.Context, req domain.CompanyProfileRequest) (domain.CompanyProfile, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.CompanyProfile{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CompanyProfile{}, store.ErrInvalidInput
	}

	profile := domain.CompanyProfile{
		Name:                 name,
		Address:              strings.TrimSpace(req.Address),
		Phone:                strings.TrimSpace(req.Phone),
		InvoiceFooterMessage: strings.TrimSpace(req.InvoiceFooterMessage),
		InvoicePrefix:        strings.TrimSpace(req.InvoicePrefix),
		RefundPrefix:         strings.TrimSpace(req.RefundPrefix),
		DepositPrefix:        strings.TrimSpace(req.DepositPrefix),
	}
	if profile.InvoicePrefix == "" {
		profile.InvoicePrefix = domain.DefaultInvoicePrefix
	}
	if profile.RefundPrefix == "" {
		profile.RefundPrefix = domain.DefaultRefundPrefix
	}
	if profile.DepositPrefix == "" {
		profile.DepositPrefix = domain.DefaultDepositPrefix
	}

	saved, err := s.repo.SaveCompanyProfile(ctx, profile)
	if err != nil {
		return domain.CompanyProfile{}, err
	}
	s.logAudit(ctx, "profile_save", "company-profile", saved.Name)
	return *saved, nil
}

// CreateSale turns the current cart lines into an atomic sale transaction.
// The repository re-reads stock and prices inside the transaction, so lines
// only carry product, variant and quantity.
func (s *Service) CreateSale(ctx context.Context, lines []domain.SaleLine, req domain.SaleRequest) (domain.Sale, error) {
	if len(lines) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidInput)
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.DiscountAmount < 0 || req.VATAmount < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	draft := domain.SaleDraft{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		PaymentMethod:  req.PaymentMethod,
		DiscountAmount: req.DiscountAmount,
		VATAmount:      req.VATAmount,
		Items:          lines,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		draft.SellerUsername = actor.Username
	}

	sale, err := s.repo.CreateSale(ctx, draft)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", sale.ID, fmt.Sprintf("invoice=%s,total=%d,method=%s", sale.InvoiceID, sale.TotalPrice, sale.PaymentMethod))
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, from, to, limit)
}

// ApplyPayment settles part of a credit sale and returns a payment receipt.
func (s *Service) ApplyPayment(ctx context.Context, saleID string, req domain.PaymentRequest) (domain.PaymentReceipt, error) {
	if strings.TrimSpace(saleID) == "" {
		return domain.PaymentReceipt{}, store.ErrInvalidInput
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) || req.PaymentMethod == domain.PaymentCredit {
		return domain.PaymentReceipt{}, fmt.Errorf("%w: unsupported settlement method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	if req.Amount < 1 {
		return domain.PaymentReceipt{}, store.ErrInvalidAmount
	}

	sale, payment, err := s.repo.ApplyPayment(ctx, saleID, req.Amount, req.PaymentMethod, time.Now().UTC())
	if err != nil {
		return domain.PaymentReceipt{}, err
	}

	s.logAudit(ctx, "payment_apply", saleID, fmt.Sprintf("amount=%d,method=%s,remaining=%d", req.Amount, req.PaymentMethod, sale.Remaining()))
	return domain.PaymentReceipt{
		Payment:          *payment,
		RemainingBalance: sale.Remaining(),
		SaleStatus:       sale.Status,
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	if strings.TrimSpace(saleID) == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListPayments(ctx, saleID)
}

// Debts lists unsettled credit sales with their outstanding total.
func (s *Service) Debts(ctx context.Context) (domain.DebtsResponse, error) {
	sales, err := s.repo.ListCreditSales(ctx)
	if err != nil {
		return domain.DebtsResponse{}, err
	}

	outstanding := int64(0)
	for _, sale := range sales {
		outstanding += sale.Remaining()
	}
	return domain.DebtsResponse{Sales: sales, OutstandingTotal: outstanding}, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todaySales, err := s.repo.ListSales(ctx, dayStart, dayStart.Add(24*time.Hour), 0)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	revenue := int64(0)
	for _, sale := range todaySales {
		revenue += sale.TotalPrice
	}

	lowStock, err := s.repo.ListLowStockProducts(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	debts, err := s.Debts(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	return domain.DashboardStats{
		Date:            dayStart.Format("2006-01-02"),
		TodayRevenue:    revenue,
		TodaySaleCount:  len(todaySales),
		LowStockCount:   len(lowStock),
		OutstandingDebt: debts.OutstandingTotal,
	}, nil
}

// SuggestReorder builds the sales-history payload for a product and asks the
// AI suggester for a restock quantity. Results are cached per product.
func (s *Service) SuggestReorder(ctx context.Context, productID string) (domain.ReorderSuggestion, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.ReorderSuggestion{}, err
	}
	if !s.suggester.Enabled() {
		return domain.ReorderSuggestion{}, fmt.Errorf("reorder suggestions unavailable: AI is not configured")
	}

	cacheKey := "reorder-suggestion:" + product.ID
	if cached, found, err := s.suggestionCache.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: suggestion cache read failed for %s: %v", product.ID, err)
	}

	history, err := s.buildSalesHistory(ctx, product.ID)
	if err != nil {
		return domain.ReorderSuggestion{}, err
	}

	out, err := s.suggester.SuggestReorderQuantity(ctx, ai.ReorderInput{
		ProductID:        product.ID,
		ProductName:      product.Name,
		HistoricalSales:  history,
		CurrentStock:     product.Quantity,
		ReorderThreshold: product.ReorderThreshold,
	})
	if err != nil {
		return domain.ReorderSuggestion{}, err
	}

	suggestion := domain.ReorderSuggestion{
		ProductID:         product.ID,
		ProductName:       product.Name,
		CurrentStock:      product.Quantity,
		ReorderThreshold:  product.ReorderThreshold,
		SuggestedQuantity: out.SuggestedQuantity,
		Reasoning:         out.Reasoning,
		GeneratedAt:       time.Now().UTC(),
	}
	if err := s.suggestionCache.Set(ctx, cacheKey, &suggestion, s.suggestionTTL); err != nil {
		log.Printf("[service] WARN: suggestion cache write failed for %s: %v", product.ID, err)
	}
	return suggestion, nil
}

func (s *Service) buildSalesHistory(ctx context.Context, productID string) (string, error) {
	sales, err := s.repo.ListSalesByProduct(ctx, productID, 50)
	if err != nil {
		return "", err
	}

	type historyEntry struct {
		Date     string `json:"date"`
		Quantity int    `json:"quantity"`
	}
	entries := make([]historyEntry, 0, len(sales))
	for _, sale := range sales {
		for _, item := range sale.Items {
			if item.ProductID != productID {
				continue
			}
			entries = append(entries, historyEntry{
				Date:     sale.CreatedAt.Format("2006-01-02"),
				Quantity: item.Quantity,
			})
		}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func normalizeVariants(variants []domain.ProductVariant) []domain.ProductVariant {
	if len(variants) == 0 {
		return nil
	}
	out := make([]domain.ProductVariant, 0, len(variants))
	for _, v := range variants {
		v.Name = strings.TrimSpace(v.Name)
		if v.ID == "" {
			v.ID = xid.New("var")
		}
		out = append(out, v)
	}
	return out
}

func requireRole(ctx context.Context, role string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != role {
		return fmt.Errorf("%s role required", role)
	}
	return nil
}

func isSupportedPaymentMethod(method string) bool {
	for _, m := range domain.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, detail string) {
	username := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		username = actor.Username
	}
	log.Printf("[audit] actor=%s action=%s entity=%s %s", username, action, entityID, detail)
}
