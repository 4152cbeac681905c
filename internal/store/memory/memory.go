package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bitikpos/backend/internal/domain"
	"bitikpos/backend/internal/store"
	"bitikpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categories      map[string]domain.Category
	customers       map[string]domain.Customer
	profile         *domain.CompanyProfile
	salesByID       map[string]*domain.Sale
	paymentsBySale  map[string][]domain.Payment
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vendeur123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"vendeur", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with only user accounts seeded. Mostly useful
// in tests that need a blank slate (e.g. no company profile yet).
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		categories:      make(map[string]domain.Category),
		customers:       make(map[string]domain.Customer),
		salesByID:       make(map[string]*domain.Sale),
		paymentsBySale:  make(map[string][]domain.Payment),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-the-01", Name: "Thé Attaya 250g", Category: "Épicerie", Price: 1500, Quantity: 80, ReorderThreshold: 15, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-sucre-01", Name: "Sucre St Louis 1kg", Category: "Épicerie", Price: 800, Quantity: 120, ReorderThreshold: 25, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-cafe-01", Name: "Café Touba 100g", Category: "Épicerie", Price: 600, Quantity: 60, ReorderThreshold: 10, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-huile-01", Name: "Huile 1L", Category: "Épicerie", Price: 1300, Quantity: 45, ReorderThreshold: 10, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-riz-01", Name: "Riz Brisé 5kg", Category: "Épicerie", Price: 4500, Quantity: 30, ReorderThreshold: 8, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-savon-01", Name: "Savon Madar", Category: "Hygiène", Price: 350, Quantity: 200, ReorderThreshold: 40, CreatedAt: now, UpdatedAt: now},
		{
			ID: "prod-wax-01", Name: "Tissu Wax 6 yards", Category: "Tissus", Price: 9000,
			ReorderThreshold: 6, CreatedAt: now, UpdatedAt: now,
			Quantity: 24,
			Variants: []domain.ProductVariant{
				{ID: "var-bleu", Name: "Bleu", Quantity: 10, PriceModifier: 0},
				{ID: "var-rouge", Name: "Rouge", Quantity: 8, PriceModifier: 500},
				{ID: "var-or", Name: "Or", Quantity: 6, PriceModifier: 1000},
			},
		},
		{
			ID: "prod-pack-01", Name: "Pack Petit Déjeuner", Category: "Épicerie",
			Price: 2700, BasePrice: 2500, Quantity: 20, ReorderThreshold: 5,
			PackItems: []domain.PackItem{
				{ProductID: "prod-the-01", Quantity: 1},
				{ProductID: "prod-sucre-01", Quantity: 1},
				{ProductID: "prod-cafe-01", Quantity: 1},
			},
			CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	for _, c := range []domain.Category{
		{ID: "cat-epicerie", Name: "Épicerie", CreatedAt: now},
		{ID: "cat-hygiene", Name: "Hygiène", CreatedAt: now},
		{ID: "cat-tissus", Name: "Tissus", CreatedAt: now},
	} {
		s.categories[c.ID] = c
	}

	for _, c := range []domain.Customer{
		{ID: "cust-awa", Name: "Awa Ndiaye", Phone: "77 123 45 67", Balance: 10000, CreatedAt: now},
		{ID: "cust-moussa", Name: "Moussa Diop", Phone: "76 987 65 43", Balance: 0, CreatedAt: now},
	} {
		s.customers[c.ID] = c
	}

	s.profile = &domain.CompanyProfile{
		Name:                 "Boutique Keur Serigne",
		Address:              "Marché HLM, Dakar",
		Phone:                "33 800 00 00",
		InvoiceFooterMessage: "Merci de votre visite !",
		InvoicePrefix:        domain.DefaultInvoicePrefix,
		RefundPrefix:         domain.DefaultRefundPrefix,
		DepositPrefix:        domain.DefaultDepositPrefix,
		LastInvoiceNumber:    0,
		UpdatedAt:            now,
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneProduct(p)
	return &cloned, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.Price < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if len(product.Variants) > 0 {
		product.Quantity = aggregateVariantQty(product.Variants)
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Category == "" || product.Price < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if len(product.Variants) > 0 {
		product.Quantity = aggregateVariantQty(product.Variants)
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.ReorderThreshold > 0 && p.Quantity <= p.ReorderThreshold {
			low = append(low, cloneProduct(p))
		}
	}
	slices.SortFunc(low, func(a, b domain.Product) int { return cmpString(a.Name, b.Name) })
	return low, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpString(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrInvalidInput
		}
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.categories[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	existing.Name = category.Name
	s.categories[category.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmpString(a.Name, b.Name) })
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := c
	return &cloned, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || customer.Balance < 0 {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	existing.Name = customer.Name
	existing.Phone = customer.Phone
	s.customers[customer.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) AddDeposit(_ context.Context, customerID string, amount int64, _ time.Time) (*domain.Customer, error) {
	if amount < 1 {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer.Balance += amount
	s.customers[customerID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) GetCompanyProfile(_ context.Context) (*domain.CompanyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil, store.ErrProfileMissing
	}
	cloned := *s.profile
	return &cloned, nil
}

func (s *Store) SaveCompanyProfile(_ context.Context, profile domain.CompanyProfile) (*domain.CompanyProfile, error) {
	if profile.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.InvoicePrefix == "" {
		profile.InvoicePrefix = domain.DefaultInvoicePrefix
	}
	if s.profile != nil {
		// The invoice counter is owned by the sale transaction, never by
		// profile edits.
		profile.LastInvoiceNumber = s.profile.LastInvoiceNumber
	}
	profile.UpdatedAt = time.Now().UTC()
	s.profile = &profile
	saved := profile
	return &saved, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range draft.Items {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile == nil {
		return nil, store.ErrProfileMissing
	}

	// Validate every line against a working copy of the touched products,
	// decrementing as it goes so duplicate lines in one draft cannot pass
	// individually yet oversell together. Nothing is written back until
	// every check has passed.
	working := make(map[string]domain.Product)
	items := make([]domain.SaleItem, 0, len(draft.Items))
	subtotal := int64(0)
	for _, line := range draft.Items {
		product, touched := working[line.ProductID]
		if !touched {
			stored, exists := s.products[line.ProductID]
			if !exists {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
			}
			product = cloneProduct(stored)
		}
		item := domain.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.SellingPrice(),
		}
		if line.VariantID != "" {
			variantIdx := -1
			for i := range product.Variants {
				if product.Variants[i].ID == line.VariantID {
					variantIdx = i
					break
				}
			}
			if variantIdx < 0 {
				return nil, fmt.Errorf("variant %s of product %s: %w", line.VariantID, product.ID, store.ErrNotFound)
			}
			variant := product.Variants[variantIdx]
			if variant.Quantity < line.Quantity {
				return nil, fmt.Errorf("%w: %s (%s)", store.ErrInsufficientStock, product.Name, variant.Name)
			}
			product.Variants[variantIdx].Quantity -= line.Quantity
			item.VariantID = variant.ID
			item.VariantName = variant.Name
			item.UnitPrice += variant.PriceModifier
		} else {
			// A variant-typed product is only sold per variant; a plain line
			// would bypass the per-variant stock and corrupt the aggregate.
			if len(product.Variants) > 0 {
				return nil, fmt.Errorf("%w: product %s is sold by variant", store.ErrInvalidInput, product.ID)
			}
			if product.Quantity < line.Quantity {
				return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, product.Name)
			}
			product.Quantity -= line.Quantity
		}
		working[line.ProductID] = product

		item.LineTotal = item.UnitPrice * int64(line.Quantity)
		subtotal += item.LineTotal
		items = append(items, item)
	}

	if draft.DiscountAmount < 0 || draft.DiscountAmount > subtotal || draft.VATAmount < 0 {
		return nil, store.ErrInvalidInput
	}
	total := subtotal - draft.DiscountAmount

	var customer *domain.Customer
	if draft.CustomerID != "" {
		c, exists := s.customers[draft.CustomerID]
		if !exists {
			return nil, fmt.Errorf("customer %s: %w", draft.CustomerID, store.ErrNotFound)
		}
		customer = &c
	}
	if draft.PaymentMethod == domain.PaymentCredit || draft.PaymentMethod == domain.PaymentCustomerCredit {
		if customer == nil {
			return nil, store.ErrInvalidInput
		}
	}
	if draft.PaymentMethod == domain.PaymentCustomerCredit && customer.Balance < total {
		return nil, store.ErrInsufficientCredit
	}

	// All checks passed; write the working copies back.
	for id, product := range working {
		if len(product.Variants) > 0 {
			product.Quantity = aggregateVariantQty(product.Variants)
		}
		product.UpdatedAt = time.Now().UTC()
		s.products[id] = product
	}

	if draft.PaymentMethod == domain.PaymentCustomerCredit {
		customer.Balance -= total
		s.customers[customer.ID] = *customer
	}

	invoiceNumber := s.profile.LastInvoiceNumber + 1
	prefix := s.profile.InvoicePrefix
	if prefix == "" {
		prefix = domain.DefaultInvoicePrefix
	}

	status := domain.SaleStatusCompleted
	paid := total
	if draft.PaymentMethod == domain.PaymentCredit {
		status = domain.SaleStatusCredit
		paid = 0
	}

	sale := &domain.Sale{
		ID:             xid.New("sale"),
		InvoiceID:      fmt.Sprintf("%s%05d", prefix, invoiceNumber),
		InvoiceNumber:  invoiceNumber,
		CustomerID:     draft.CustomerID,
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: draft.DiscountAmount,
		VATAmount:      draft.VATAmount,
		TotalPrice:     total,
		PaidAmount:     paid,
		PaymentMethod:  draft.PaymentMethod,
		Status:         status,
		SellerUsername: draft.SellerUsername,
		CreatedAt:      time.Now().UTC(),
	}
	if customer != nil {
		sale.CustomerName = customer.Name
	}

	s.profile.LastInvoiceNumber = invoiceNumber
	s.salesByID[sale.ID] = sale

	cloned := cloneSale(*sale)
	return &cloned, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(*sale)
	return &cloned, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(*sale))
	}
	sortSalesDesc(sales)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ListCreditSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCredit {
			continue
		}
		sales = append(sales, cloneSale(*sale))
	}
	sortSalesDesc(sales)
	return sales, nil
}

func (s *Store) ListSalesByProduct(_ context.Context, productID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 16)
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == productID {
				sales = append(sales, cloneSale(*sale))
				break
			}
		}
	}
	sortSalesDesc(sales)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ApplyPayment(_ context.Context, saleID string, amount int64, method string, at time.Time) (*domain.Sale, *domain.Payment, error) {
	if amount < 1 {
		return nil, nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	remaining := sale.TotalPrice - sale.PaidAmount
	if amount > remaining {
		return nil, nil, store.ErrAmountExceedsDebt
	}

	if method == domain.PaymentCustomerCredit {
		customer, ok := s.customers[sale.CustomerID]
		if !ok {
			return nil, nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
		if customer.Balance < amount {
			return nil, nil, store.ErrInsufficientCredit
		}
		customer.Balance -= amount
		s.customers[customer.ID] = customer
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	payment := domain.Payment{
		ID:            xid.New("pay"),
		SaleID:        sale.ID,
		InvoiceID:     sale.InvoiceID,
		CustomerName:  sale.CustomerName,
		Amount:        amount,
		PaymentMethod: method,
		PaidAt:        at,
	}
	s.paymentsBySale[sale.ID] = append(s.paymentsBySale[sale.ID], payment)

	sale.PaidAmount += amount
	if sale.PaidAmount >= sale.TotalPrice {
		sale.Status = domain.SaleStatusCompleted
	}

	clonedSale := cloneSale(*sale)
	clonedPayment := payment
	return &clonedSale, &clonedPayment, nil
}

func (s *Store) ListPayments(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := s.paymentsBySale[saleID]
	result := make([]domain.Payment, len(payments))
	copy(result, payments)
	slices.SortFunc(result, func(a, b domain.Payment) int {
		if a.PaidAt.Equal(b.PaidAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.PaidAt.Before(b.PaidAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return cmpString(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func aggregateVariantQty(variants []domain.ProductVariant) int {
	total := 0
	for _, v := range variants {
		total += v.Quantity
	}
	return total
}

func cloneProduct(p domain.Product) domain.Product {
	cloned := p
	if len(p.Variants) > 0 {
		cloned.Variants = make([]domain.ProductVariant, len(p.Variants))
		copy(cloned.Variants, p.Variants)
	}
	if len(p.PackItems) > 0 {
		cloned.PackItems = make([]domain.PackItem, len(p.PackItems))
		copy(cloned.PackItems, p.PackItems)
	}
	return cloned
}

func cloneSale(s domain.Sale) domain.Sale {
	cloned := s
	if len(s.Items) > 0 {
		cloned.Items = make([]domain.SaleItem, len(s.Items))
		copy(cloned.Items, s.Items)
	}
	return cloned
}

func sortSalesDesc(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
