package store

import (
	"context"
	"errors"
	"time"

	"bitikpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProfileMissing     = errors.New("company profile missing")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientCredit = errors.New("insufficient customer credit")
	ErrAmountExceedsDebt  = errors.New("amount exceeds remaining balance")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTransactionFailed  = errors.New("transaction failed")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	AddDeposit(ctx context.Context, customerID string, amount int64, at time.Time) (*domain.Customer, error)

	GetCompanyProfile(ctx context.Context) (*domain.CompanyProfile, error)
	SaveCompanyProfile(ctx context.Context, profile domain.CompanyProfile) (*domain.CompanyProfile, error)

	// CreateSale runs the whole sale as one atomic transaction: fresh
	// product and profile reads, stock validation and decrement, customer
	// credit debit for Acompte Client, invoice number allocation and the
	// sale write all commit together or not at all.
	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	ListCreditSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByProduct(ctx context.Context, productID string, limit int) ([]domain.Sale, error)

	// ApplyPayment settles part of a credit sale atomically: the payment
	// record, the sale's paid amount/status and any Acompte Client balance
	// debit commit together.
	ApplyPayment(ctx context.Context, saleID string, amount int64, method string, at time.Time) (*domain.Sale, *domain.Payment, error)
	ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
