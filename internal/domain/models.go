package domain

import "time"

// Amounts are whole F CFA francs. The currency has no minor unit, so int64
// francs play the role cents would in other deployments.

const (
	PaymentCash           = "Espèce"
	PaymentWave           = "Wave"
	PaymentOrangeMoney    = "Orange Money"
	PaymentCredit         = "Créance"
	PaymentCustomerCredit = "Acompte Client"
)

const (
	SaleStatusCompleted         = "Complété"
	SaleStatusCredit            = "Créance"
	SaleStatusPartiallyReturned = "Partiellement Retourné"
	SaleStatusReturned          = "Retourné"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "vendeur"
)

const (
	DefaultInvoicePrefix = "FAC-"
	DefaultRefundPrefix  = "REM-"
	DefaultDepositPrefix = "ACPT-"
)

// VATRatePercent is the standard Senegalese VAT rate shown on invoices.
const VATRatePercent = 18.0

// PaymentMethods lists the accepted methods in display order.
var PaymentMethods = []string{
	PaymentCash,
	PaymentWave,
	PaymentOrangeMoney,
	PaymentCredit,
	PaymentCustomerCredit,
}

type ProductVariant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	PriceModifier int64  `json:"price_modifier"`
}

type PackItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Product struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Category         string           `json:"category"`
	Price            int64            `json:"price"`
	BasePrice        int64            `json:"base_price,omitempty"`
	Quantity         int              `json:"quantity"`
	ReorderThreshold int              `json:"reorder_threshold"`
	Variants         []ProductVariant `json:"variants,omitempty"`
	PackItems        []PackItem       `json:"pack_items,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SellingPrice resolves the unit price for a product, preferring BasePrice
// when one is set (packs keep their display price in Price).
func (p Product) SellingPrice() int64 {
	if p.BasePrice > 0 {
		return p.BasePrice
	}
	return p.Price
}

type ProductCreateRequest struct {
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	Price            int64            `json:"price"`
	BasePrice        int64            `json:"base_price"`
	Quantity         int              `json:"quantity"`
	ReorderThreshold int              `json:"reorder_threshold"`
	Variants         []ProductVariant `json:"variants"`
	PackItems        []PackItem       `json:"pack_items"`
}

type ProductUpdateRequest struct {
	Name             *string           `json:"name,omitempty"`
	Description      *string           `json:"description,omitempty"`
	Category         *string           `json:"category,omitempty"`
	Price            *int64            `json:"price,omitempty"`
	BasePrice        *int64            `json:"base_price,omitempty"`
	Quantity         *int              `json:"quantity,omitempty"`
	ReorderThreshold *int              `json:"reorder_threshold,omitempty"`
	Variants         *[]ProductVariant `json:"variants,omitempty"`
	PackItems        *[]PackItem       `json:"pack_items,omitempty"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Balance int64  `json:"balance"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// CartItem is one resolved line in a seller's cart. Key is the product ID,
// or "{productID}-{variantID}" for a variant line.
type CartItem struct {
	Key         string `json:"key"`
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

type AddCartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type CartItemUpdateRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items    []CartItem `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

type SaleItem struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

type Sale struct {
	ID             string     `json:"id"`
	InvoiceID      string     `json:"invoice_id"`
	InvoiceNumber  int64      `json:"invoice_number"`
	CustomerID     string     `json:"customer_id,omitempty"`
	CustomerName   string     `json:"customer_name,omitempty"`
	Items          []SaleItem `json:"items"`
	Subtotal       int64      `json:"subtotal"`
	DiscountAmount int64      `json:"discount_amount"`
	VATAmount      int64      `json:"vat_amount"`
	TotalPrice     int64      `json:"total_price"`
	PaidAmount     int64      `json:"paid_amount"`
	PaymentMethod  string     `json:"payment_method"`
	Status         string     `json:"status"`
	SellerUsername string     `json:"seller_username,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Remaining returns the unpaid balance of the sale.
func (s Sale) Remaining() int64 {
	return s.TotalPrice - s.PaidAmount
}

// SaleLine identifies one cart line inside a sale draft. Quantities and
// prices are re-resolved against product state inside the transaction.
type SaleLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// SaleDraft is the store-level input for the atomic sale transaction.
type SaleDraft struct {
	CustomerID     string
	PaymentMethod  string
	DiscountAmount int64
	VATAmount      int64
	SellerUsername string
	Items          []SaleLine
}

type SaleRequest struct {
	CustomerID     string `json:"customer_id"`
	PaymentMethod  string `json:"payment_method"`
	DiscountAmount int64  `json:"discount_amount"`
	VATAmount      int64  `json:"vat_amount"`
}

type Payment struct {
	ID            string    `json:"id"`
	SaleID        string    `json:"sale_id"`
	InvoiceID     string    `json:"invoice_id"`
	CustomerName  string    `json:"customer_name,omitempty"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	PaidAt        time.Time `json:"paid_at"`
}

type PaymentRequest struct {
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

type PaymentReceipt struct {
	Payment          Payment `json:"payment"`
	RemainingBalance int64   `json:"remaining_balance"`
	SaleStatus       string  `json:"sale_status"`
}

type DepositRequest struct {
	Amount int64 `json:"amount"`
}

type DepositReceipt struct {
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Amount       int64     `json:"amount"`
	NewBalance   int64     `json:"new_balance"`
	DepositedAt  time.Time `json:"deposited_at"`
}

type CompanyProfile struct {
	Name                 string    `json:"name"`
	Address              string    `json:"address,omitempty"`
	Phone                string    `json:"phone,omitempty"`
	InvoiceFooterMessage string    `json:"invoice_footer_message,omitempty"`
	InvoicePrefix        string    `json:"invoice_prefix"`
	RefundPrefix         string    `json:"refund_prefix"`
	DepositPrefix        string    `json:"deposit_prefix"`
	LastInvoiceNumber    int64     `json:"last_invoice_number"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type CompanyProfileRequest struct {
	Name                 string `json:"name"`
	Address              string `json:"address"`
	Phone                string `json:"phone"`
	InvoiceFooterMessage string `json:"invoice_footer_message"`
	InvoicePrefix        string `json:"invoice_prefix"`
	RefundPrefix         string `json:"refund_prefix"`
	DepositPrefix        string `json:"deposit_prefix"`
}

type DebtsResponse struct {
	Sales            []Sale `json:"sales"`
	OutstandingTotal int64  `json:"outstanding_total"`
}

type DashboardStats struct {
	Date            string `json:"date"`
	TodayRevenue    int64  `json:"today_revenue"`
	TodaySaleCount  int    `json:"today_sale_count"`
	LowStockCount   int    `json:"low_stock_count"`
	OutstandingDebt int64  `json:"outstanding_debt"`
}

type ReorderSuggestion struct {
	ProductID         string    `json:"product_id"`
	ProductName       string    `json:"product_name"`
	CurrentStock      int       `json:"current_stock"`
	ReorderThreshold  int       `json:"reorder_threshold"`
	SuggestedQuantity int       `json:"suggested_quantity"`
	Reasoning         string    `json:"reasoning"`
	GeneratedAt       time.Time `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
