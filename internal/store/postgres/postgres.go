package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bitikpos/backend/internal/domain"
	"bitikpos/backend/internal/store"
	"bitikpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// serializableAttempts bounds the retry loop for serialization conflicts.
const serializableAttempts = 4

// runSerializable executes fn inside a SERIALIZABLE transaction, retrying a
// bounded number of times on serialization failures (SQLSTATE 40001) and
// deadlocks (40P01). After the last attempt the conflict is surfaced as
// store.ErrTransactionFailed.
func (s *Store) runSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		err = fn(tx)
		if err == nil {
			err = tx.Commit()
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback()
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", store.ErrTransactionFailed, lastErr)
}

const productColumns = `id, name, COALESCE(description,''), category, price, base_price, quantity,
	reorder_threshold, variants, pack_items, created_at, updated_at`

func scanProduct(scanner interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var variantsRaw, packItemsRaw []byte
	err := scanner.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.BasePrice,
		&p.Quantity, &p.ReorderThreshold, &variantsRaw, &packItemsRaw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if len(variantsRaw) > 0 {
		if err := json.Unmarshal(variantsRaw, &p.Variants); err != nil {
			return domain.Product{}, fmt.Errorf("decode variants for %s: %w", p.ID, err)
		}
	}
	if len(packItemsRaw) > 0 {
		if err := json.Unmarshal(packItemsRaw, &p.PackItems); err != nil {
			return domain.Product{}, fmt.Errorf("decode pack items for %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.Price < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if len(product.Variants) > 0 {
		product.Quantity = aggregateVariantQty(product.Variants)
	}
	variantsRaw, packItemsRaw, err := encodeVariantColumns(product)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, category, price, base_price, quantity,
			reorder_threshold, variants, pack_items, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Name, product.Description, product.Category, product.Price,
		product.BasePrice, product.Quantity, product.ReorderThreshold, variantsRaw, packItemsRaw,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.Price < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if len(product.Variants) > 0 {
		product.Quantity = aggregateVariantQty(product.Variants)
	}
	variantsRaw, packItemsRaw, err := encodeVariantColumns(product)
	if err != nil {
		return nil, err
	}

	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, price = $5, base_price = $6,
			quantity = $7, reorder_threshold = $8, variants = $9, pack_items = $10, updated_at = $11
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Category, product.Price,
		product.BasePrice, product.Quantity, product.ReorderThreshold, variantsRaw, packItemsRaw,
		product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE reorder_threshold > 0 AND quantity <= reorder_threshold
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2 WHERE id = $1
	`, category.ID, category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), balance, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Balance, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), balance, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Balance < 0 {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, balance, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.Balance, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, phone = $3 WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomerByID(ctx, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AddDeposit(ctx context.Context, customerID string, amount int64, at time.Time) (*domain.Customer, error) {
	if amount < 1 {
		return nil, store.ErrInvalidAmount
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// A single UPDATE is an atomic read-modify-write; no explicit
	// transaction needed for the balance increment.
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET balance = balance + $2
		WHERE id = $1
		RETURNING id, name, COALESCE(phone,''), balance, created_at
	`, customerID, amount).Scan(&c.ID, &c.Name, &c.Phone, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

const profileColumns = `name, COALESCE(address,''), COALESCE(phone,''), COALESCE(invoice_footer_message,''),
	invoice_prefix, refund_prefix, deposit_prefix, last_invoice_number, updated_at`

func (s *Store) GetCompanyProfile(ctx context.Context) (*domain.CompanyProfile, error) {
	var p domain.CompanyProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM company_profile
		WHERE id = 1
	`).Scan(&p.Name, &p.Address, &p.Phone, &p.InvoiceFooterMessage, &p.InvoicePrefix,
		&p.RefundPrefix, &p.DepositPrefix, &p.LastInvoiceNumber, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileMissing
		}
		return nil, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) SaveCompanyProfile(ctx context.Context, profile domain.CompanyProfile) (*domain.CompanyProfile, error) {
	if profile.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if profile.InvoicePrefix == "" {
		profile.InvoicePrefix = domain.DefaultInvoicePrefix
	}
	profile.UpdatedAt = time.Now().UTC()

	// last_invoice_number is owned by the sale transaction; the upsert
	// only sets it when the row does not exist yet.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO company_profile (
			id, name, address, phone, invoice_footer_message,
			invoice_prefix, refund_prefix, deposit_prefix, last_invoice_number, updated_at
		)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,0,$8)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone,
			invoice_footer_message = EXCLUDED.invoice_footer_message,
			invoice_prefix = EXCLUDED.invoice_prefix, refund_prefix = EXCLUDED.refund_prefix,
			deposit_prefix = EXCLUDED.deposit_prefix, updated_at = EXCLUDED.updated_at
		RETURNING last_invoice_number
	`, profile.Name, nullIfEmpty(profile.Address), nullIfEmpty(profile.Phone),
		nullIfEmpty(profile.InvoiceFooterMessage), profile.InvoicePrefix, profile.RefundPrefix,
		profile.DepositPrefix, profile.UpdatedAt).Scan(&profile.LastInvoiceNumber)
	if err != nil {
		return nil, err
	}
	saved := profile
	return &saved, nil
}

func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range draft.Items {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
	}
	if draft.DiscountAmount < 0 || draft.VATAmount < 0 {
		return nil, store.ErrInvalidInput
	}

	var sale *domain.Sale
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		created, err := s.createSaleTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		sale = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) createSaleTx(ctx context.Context, tx *sql.Tx, draft domain.SaleDraft) (*domain.Sale, error) {
	// Lock the profile row first: it serializes invoice allocation and
	// gives every sale a consistent view of the prefix.
	var prefix string
	var lastInvoiceNumber int64
	err := tx.QueryRowContext(ctx, `
		SELECT invoice_prefix, last_invoice_number
		FROM company_profile
		WHERE id = 1
		FOR UPDATE
	`).Scan(&prefix, &lastInvoiceNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileMissing
		}
		return nil, err
	}
	if prefix == "" {
		prefix = domain.DefaultInvoicePrefix
	}

	ids := uniqueProductIDs(draft.Items)
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	subtotal := int64(0)
	items := make([]domain.SaleItem, 0, len(draft.Items))
	for _, line := range draft.Items {
		product, exists := productMap[line.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
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
			product.Quantity = aggregateVariantQty(product.Variants)
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
		productMap[product.ID] = product

		item.LineTotal = item.UnitPrice * int64(line.Quantity)
		subtotal += item.LineTotal
		items = append(items, item)
	}

	if draft.DiscountAmount > subtotal {
		return nil, store.ErrInvalidInput
	}
	total := subtotal - draft.DiscountAmount

	customerName := ""
	if draft.CustomerID != "" {
		err := tx.QueryRowContext(ctx, `
			SELECT name FROM customers WHERE id = $1 FOR UPDATE
		`, draft.CustomerID).Scan(&customerName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("customer %s: %w", draft.CustomerID, store.ErrNotFound)
			}
			return nil, err
		}
	}
	if draft.PaymentMethod == domain.PaymentCredit || draft.PaymentMethod == domain.PaymentCustomerCredit {
		if draft.CustomerID == "" {
			return nil, store.ErrInvalidInput
		}
	}
	if draft.PaymentMethod == domain.PaymentCustomerCredit {
		res, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET balance = balance - $2
			WHERE id = $1 AND balance >= $2
		`, draft.CustomerID, total)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientCredit
		}
	}

	for _, product := range productMap {
		variantsRaw, _, err := encodeVariantColumns(product)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = $2, variants = $3, updated_at = now()
			WHERE id = $1
		`, product.ID, product.Quantity, variantsRaw)
		if err != nil {
			return nil, err
		}
	}

	invoiceNumber := lastInvoiceNumber + 1
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
		CustomerName:   customerName,
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_id, invoice_number, customer_id, customer_name, subtotal,
			discount_amount, vat_amount, total_price, paid_amount, payment_method,
			status, seller_username, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.InvoiceID, sale.InvoiceNumber, nullIfEmpty(sale.CustomerID),
		nullIfEmpty(sale.CustomerName), sale.Subtotal, sale.DiscountAmount, sale.VATAmount,
		sale.TotalPrice, sale.PaidAmount, sale.PaymentMethod, sale.Status,
		nullIfEmpty(sale.SellerUsername), sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, product_id, variant_id, name, variant_name, unit_price, quantity, line_total
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, item.ProductID, nullIfEmpty(item.VariantID), item.Name,
			nullIfEmpty(item.VariantName), item.UnitPrice, item.Quantity, item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE company_profile
		SET last_invoice_number = $1, updated_at = now()
		WHERE id = 1
	`, invoiceNumber)
	if err != nil {
		return nil, err
	}

	return sale, nil
}

const saleColumns = `id, invoice_id, invoice_number, COALESCE(customer_id,''), COALESCE(customer_name,''),
	subtotal, discount_amount, vat_amount, total_price, paid_amount, payment_method,
	status, COALESCE(seller_username,''), created_at`

func scanSale(scanner interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := scanner.Scan(&sale.ID, &sale.InvoiceID, &sale.InvoiceNumber, &sale.CustomerID,
		&sale.CustomerName, &sale.Subtotal, &sale.DiscountAmount, &sale.VATAmount,
		&sale.TotalPrice, &sale.PaidAmount, &sale.PaymentMethod, &sale.Status,
		&sale.SellerUsername, &sale.CreatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, COALESCE(variant_id,''), name, COALESCE(variant_name,''),
			unit_price, quantity, line_total
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.VariantID, &item.Name,
			&item.VariantName, &item.UnitPrice, &item.Quantity, &item.LineTotal); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectSales(ctx, rows)
}

func (s *Store) ListCreditSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE status = $1
		ORDER BY created_at DESC
	`, domain.SaleStatusCredit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectSales(ctx, rows)
}

func (s *Store) ListSalesByProduct(ctx context.Context, productID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id IN (SELECT DISTINCT sale_id FROM sale_items WHERE product_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collectSales(ctx, rows)
}

func (s *Store) collectSales(ctx context.Context, rows *sql.Rows) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	items, err := s.loadSaleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) ApplyPayment(ctx context.Context, saleID string, amount int64, method string, at time.Time) (*domain.Sale, *domain.Payment, error) {
	if amount < 1 {
		return nil, nil, store.ErrInvalidAmount
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var sale domain.Sale
	var payment domain.Payment
	err := s.runSerializable(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+saleColumns+`
			FROM sales
			WHERE id = $1
			FOR UPDATE
		`, saleID)
		locked, err := scanSale(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		remaining := locked.TotalPrice - locked.PaidAmount
		if amount > remaining {
			return store.ErrAmountExceedsDebt
		}

		if method == domain.PaymentCustomerCredit {
			res, err := tx.ExecContext(ctx, `
				UPDATE customers
				SET balance = balance - $2
				WHERE id = $1 AND balance >= $2
			`, locked.CustomerID, amount)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return store.ErrInsufficientCredit
			}
		}

		payment = domain.Payment{
			ID:            xid.New("pay"),
			SaleID:        locked.ID,
			InvoiceID:     locked.InvoiceID,
			CustomerName:  locked.CustomerName,
			Amount:        amount,
			PaymentMethod: method,
			PaidAt:        at,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, sale_id, invoice_id, customer_name, amount, payment_method, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, payment.ID, payment.SaleID, payment.InvoiceID, nullIfEmpty(payment.CustomerName),
			payment.Amount, payment.PaymentMethod, payment.PaidAt)
		if err != nil {
			return err
		}

		locked.PaidAmount += amount
		if locked.PaidAmount >= locked.TotalPrice {
			locked.Status = domain.SaleStatusCompleted
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sales SET paid_amount = $2, status = $3 WHERE id = $1
		`, locked.ID, locked.PaidAmount, locked.Status)
		if err != nil {
			return err
		}

		sale = locked
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, invoice_id, COALESCE(customer_name,''), amount, payment_method, paid_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY paid_at ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.InvoiceID, &p.CustomerName, &p.Amount, &p.PaymentMethod, &p.PaidAt); err != nil {
			return nil, err
		}
		p.PaidAt = p.PaidAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.SaleLine) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func aggregateVariantQty(variants []domain.ProductVariant) int {
	total := 0
	for _, v := range variants {
		total += v.Quantity
	}
	return total
}

func encodeVariantColumns(product domain.Product) ([]byte, []byte, error) {
	var variantsRaw, packItemsRaw []byte
	var err error
	if len(product.Variants) > 0 {
		variantsRaw, err = json.Marshal(product.Variants)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(product.PackItems) > 0 {
		packItemsRaw, err = json.Marshal(product.PackItems)
		if err != nil {
			return nil, nil, err
		}
	}
	return variantsRaw, packItemsRaw, nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
