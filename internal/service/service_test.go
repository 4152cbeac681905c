package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitikpos/backend/internal/ai"
	"bitikpos/backend/internal/cache"
	"bitikpos/backend/internal/domain"
	"bitikpos/backend/internal/store"
	"bitikpos/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, ai.NewSuggester(""), cache.NoopSuggestionCache{}, time.Hour)
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "awa", Role: domain.RoleSeller})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func TestCashSaleCompletesAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 2},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}

	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected status %s, got %s", domain.SaleStatusCompleted, sale.Status)
	}
	if sale.TotalPrice != 3000 || sale.PaidAmount != 3000 {
		t.Fatalf("unexpected amounts total=%d paid=%d", sale.TotalPrice, sale.PaidAmount)
	}
	if sale.SellerUsername != "awa" {
		t.Fatalf("expected seller recorded, got %q", sale.SellerUsername)
	}

	product, err := svc.GetProduct(ctx, "prod-the-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 78 {
		t.Fatalf("expected stock 78 after sale, got %d", product.Quantity)
	}
}

func TestCreditSaleKeepsDebtOpen(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCredit, CustomerID: "cust-moussa"})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	if sale.Status != domain.SaleStatusCredit {
		t.Fatalf("expected status %s, got %s", domain.SaleStatusCredit, sale.Status)
	}
	if sale.PaidAmount != 0 {
		t.Fatalf("expected nothing paid on credit sale, got %d", sale.PaidAmount)
	}
	if sale.Remaining() != sale.TotalPrice {
		t.Fatalf("expected full amount outstanding")
	}

	debts, err := svc.Debts(ctx)
	if err != nil {
		t.Fatalf("debts: %v", err)
	}
	if len(debts.Sales) != 1 || debts.OutstandingTotal != sale.TotalPrice {
		t.Fatalf("unexpected debts %+v", debts)
	}
}

func TestCreditSaleRequiresCustomer(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-sucre-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCredit})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreCreditSaleDebitsBalance(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCustomerCredit, CustomerID: "cust-awa"})
	if err != nil {
		t.Fatalf("store-credit sale failed: %v", err)
	}
	if sale.Status != domain.SaleStatusCompleted || sale.PaidAmount != 4500 {
		t.Fatalf("unexpected sale %+v", sale)
	}

	customer, err := svc.GetCustomer(ctx, "cust-awa")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Balance != 5500 {
		t.Fatalf("expected balance 5500 after debit, got %d", customer.Balance)
	}
}

func TestStoreCreditSaleRejectsInsufficientBalance(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCustomerCredit, CustomerID: "cust-moussa"})
	if !errors.Is(err, store.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	// The failed sale must leave stock untouched.
	product, err := svc.GetProduct(sellerCtx(), "prod-riz-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 30 {
		t.Fatalf("expected stock 30 after rejected sale, got %d", product.Quantity)
	}
}

func TestOversellFailsAtomically(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	_, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 2},
		{ProductID: "prod-cafe-01", Quantity: 500},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Neither line may have mutated stock.
	the, _ := svc.GetProduct(ctx, "prod-the-01")
	cafe, _ := svc.GetProduct(ctx, "prod-cafe-01")
	if the.Quantity != 80 || cafe.Quantity != 60 {
		t.Fatalf("expected untouched stock, got the=%d cafe=%d", the.Quantity, cafe.Quantity)
	}

	// No invoice number may have been burned by the failed attempt.
	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("follow-up sale failed: %v", err)
	}
	if sale.InvoiceID != "FAC-00001" {
		t.Fatalf("expected FAC-00001, got %s", sale.InvoiceID)
	}
}

func TestInvoiceNumbersMonotonic(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	want := []string{"FAC-00001", "FAC-00002", "FAC-00003"}
	for _, expected := range want {
		sale, err := svc.CreateSale(ctx, []domain.SaleLine{
			{ProductID: "prod-savon-01", Quantity: 1},
		}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
		if err != nil {
			t.Fatalf("sale failed: %v", err)
		}
		if sale.InvoiceID != expected {
			t.Fatalf("expected invoice %s, got %s", expected, sale.InvoiceID)
		}
	}

	profile, err := svc.GetCompanyProfile(ctx)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.LastInvoiceNumber != 3 {
		t.Fatalf("expected counter 3, got %d", profile.LastInvoiceNumber)
	}
}

func TestVariantSaleUpdatesAggregateStock(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-wax-01", VariantID: "var-rouge", Quantity: 2},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentWave})
	if err != nil {
		t.Fatalf("variant sale failed: %v", err)
	}
	if sale.Items[0].UnitPrice != 9500 {
		t.Fatalf("expected variant unit price 9500, got %d", sale.Items[0].UnitPrice)
	}

	product, err := svc.GetProduct(ctx, "prod-wax-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	var rouge *domain.ProductVariant
	for i := range product.Variants {
		if product.Variants[i].ID == "var-rouge" {
			rouge = &product.Variants[i]
		}
	}
	if rouge == nil || rouge.Quantity != 6 {
		t.Fatalf("expected variant stock 6, got %+v", rouge)
	}
	if product.Quantity != 22 {
		t.Fatalf("expected aggregate stock 22, got %d", product.Quantity)
	}
}

func TestVariantOversellRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-wax-01", VariantID: "var-or", Quantity: 7},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for variant oversell, got %v", err)
	}
}

func TestVariantProductRejectsPlainLine(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	// A line without a variant on a variant-typed product must fail as a
	// whole, even when a second line names a variant. A plain decrement
	// followed by the variant aggregate recompute would silently drop
	// the plain units.
	_, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-wax-01", Quantity: 20},
		{ProductID: "prod-wax-01", VariantID: "var-bleu", Quantity: 5},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for variantless line, got %v", err)
	}

	product, err := svc.GetProduct(ctx, "prod-wax-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 24 {
		t.Fatalf("expected stock untouched at 24, got %d", product.Quantity)
	}
	for _, v := range product.Variants {
		if v.ID == "var-bleu" && v.Quantity != 10 {
			t.Fatalf("expected variant stock untouched at 10, got %d", v.Quantity)
		}
	}
}

func TestDuplicateLinesCannotOversell(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	// Two lines for the same product must be checked against stock
	// cumulatively, not each against the starting quantity.
	_, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-cafe-01", Quantity: 40},
		{ProductID: "prod-cafe-01", Quantity: 40},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for cumulative oversell, got %v", err)
	}

	product, err := svc.GetProduct(ctx, "prod-cafe-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 60 {
		t.Fatalf("expected stock untouched at 60, got %d", product.Quantity)
	}
}

func TestDuplicateVariantLinesCannotOversell(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	_, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-wax-01", VariantID: "var-or", Quantity: 4},
		{ProductID: "prod-wax-01", VariantID: "var-or", Quantity: 4},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for cumulative variant oversell, got %v", err)
	}

	product, err := svc.GetProduct(ctx, "prod-wax-01")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 24 {
		t.Fatalf("expected aggregate stock untouched at 24, got %d", product.Quantity)
	}
}

func TestDiscountReducesTotal(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 2},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash, DiscountAmount: 500})
	if err != nil {
		t.Fatalf("discounted sale failed: %v", err)
	}
	if sale.Subtotal != 3000 || sale.TotalPrice != 2500 {
		t.Fatalf("unexpected totals subtotal=%d total=%d", sale.Subtotal, sale.TotalPrice)
	}

	_, err = svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash, DiscountAmount: 99999})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for discount above subtotal, got %v", err)
	}
}

func TestSaleRejectsUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: "Chèque"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyPaymentLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 2},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCredit, CustomerID: "cust-moussa"})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	if _, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: sale.TotalPrice + 1, PaymentMethod: domain.PaymentCash}); !errors.Is(err, store.ErrAmountExceedsDebt) {
		t.Fatalf("expected ErrAmountExceedsDebt, got %v", err)
	}
	if _, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: 0, PaymentMethod: domain.PaymentCash}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: 1000, PaymentMethod: domain.PaymentCredit}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for settling with credit, got %v", err)
	}

	receipt, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: 3000, PaymentMethod: domain.PaymentCash})
	if err != nil {
		t.Fatalf("partial payment failed: %v", err)
	}
	if receipt.RemainingBalance != sale.TotalPrice-3000 || receipt.SaleStatus != domain.SaleStatusCredit {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	receipt, err = svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: sale.TotalPrice - 3000, PaymentMethod: domain.PaymentWave})
	if err != nil {
		t.Fatalf("final payment failed: %v", err)
	}
	if receipt.SaleStatus != domain.SaleStatusCompleted || receipt.RemainingBalance != 0 {
		t.Fatalf("expected settled sale, got %+v", receipt)
	}

	payments, err := svc.ListPayments(ctx, sale.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}

	// A settled sale accepts no further payments.
	if _, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: 100, PaymentMethod: domain.PaymentCash}); !errors.Is(err, store.ErrAmountExceedsDebt) {
		t.Fatalf("expected ErrAmountExceedsDebt on settled sale, got %v", err)
	}
}

func TestApplyPaymentWithStoreCreditDebitsBalance(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCredit, CustomerID: "cust-awa"})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	receipt, err := svc.ApplyPayment(ctx, sale.ID, domain.PaymentRequest{Amount: 4500, PaymentMethod: domain.PaymentCustomerCredit})
	if err != nil {
		t.Fatalf("store-credit settlement failed: %v", err)
	}
	if receipt.SaleStatus != domain.SaleStatusCompleted {
		t.Fatalf("expected settled sale, got %s", receipt.SaleStatus)
	}

	customer, err := svc.GetCustomer(ctx, "cust-awa")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Balance != 5500 {
		t.Fatalf("expected balance 5500 after settlement, got %d", customer.Balance)
	}
}

func TestDepositLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	receipt, err := svc.AddDeposit(ctx, "cust-moussa", domain.DepositRequest{Amount: 7000})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if receipt.NewBalance != 7000 || receipt.CustomerName != "Moussa Diop" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	if _, err := svc.AddDeposit(ctx, "cust-moussa", domain.DepositRequest{Amount: 0}); !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.AddDeposit(ctx, "cust-missing", domain.DepositRequest{Amount: 100}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaleWithoutCompanyProfile(t *testing.T) {
	repo := memory.New()
	svc := New(repo, ai.NewSuggester(""), cache.NoopSuggestionCache{}, time.Hour)

	_, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-any", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash})
	if !errors.Is(err, store.ErrProfileMissing) {
		t.Fatalf("expected ErrProfileMissing, got %v", err)
	}
}

func TestProfileSavePreservesInvoiceCounter(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), []domain.SaleLine{
		{ProductID: "prod-savon-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	saved, err := svc.SaveCompanyProfile(adminCtx(), domain.CompanyProfileRequest{
		Name:    "Boutique Keur Serigne",
		Address: "Nouvelle adresse",
	})
	if err != nil {
		t.Fatalf("save profile failed: %v", err)
	}
	if saved.LastInvoiceNumber != 1 {
		t.Fatalf("expected counter preserved at 1, got %d", saved.LastInvoiceNumber)
	}
}

func TestProductAdminGate(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(sellerCtx(), domain.ProductCreateRequest{
		Name: "Bougie", Category: "Hygiène", Price: 500, Quantity: 5,
	})
	if err == nil {
		t.Fatalf("expected seller product creation to be rejected")
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name: "Bougie", Category: "Hygiène", Price: 500, Quantity: 5,
	})
	if err != nil {
		t.Fatalf("admin product creation failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected product id to be assigned")
	}
}

func TestDashboardStatsCountsTodaysSales(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	if _, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-the-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCash}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, []domain.SaleLine{
		{ProductID: "prod-riz-01", Quantity: 1},
	}, domain.SaleRequest{PaymentMethod: domain.PaymentCredit, CustomerID: "cust-moussa"}); err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TodaySaleCount != 2 {
		t.Fatalf("expected 2 sales today, got %d", stats.TodaySaleCount)
	}
	if stats.TodayRevenue != 1500+4500 {
		t.Fatalf("expected revenue 6000, got %d", stats.TodayRevenue)
	}
	if stats.OutstandingDebt != 4500 {
		t.Fatalf("expected outstanding 4500, got %d", stats.OutstandingDebt)
	}
}
