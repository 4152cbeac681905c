// Package cart holds the in-progress sale lines for one seller. A cart is
// purely a presentation-side staging area: prices are snapshotted when a
// line is added, and authoritative stock and price checks happen again
// inside the sale transaction.
package cart

import (
	"fmt"
	"sync"

	"bitikpos/backend/internal/domain"
)

// Key builds the cart line key for a product, or a product/variant pair.
func Key(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return fmt.Sprintf("%s-%s", productID, variantID)
}

type Cart struct {
	mu    sync.Mutex
	order []string
	items map[string]domain.CartItem
}

func New() *Cart {
	return &Cart{items: make(map[string]domain.CartItem)}
}

// Add inserts a line for the product (and optional variant), merging into an
// existing line with the same key by incrementing its quantity. The unit
// price is resolved from the product's base price plus the variant modifier.
func (c *Cart) Add(product domain.Product, variant *domain.ProductVariant, quantity int) (domain.CartItem, error) {
	if quantity < 1 {
		return domain.CartItem{}, fmt.Errorf("quantity must be at least 1")
	}
	// Variant-typed products carry their stock per variant, so a line
	// must name the variant being sold.
	if variant == nil && len(product.Variants) > 0 {
		return domain.CartItem{}, fmt.Errorf("product %s requires a variant selection", product.ID)
	}

	variantID := ""
	variantName := ""
	unitPrice := product.SellingPrice()
	if variant != nil {
		variantID = variant.ID
		variantName = variant.Name
		unitPrice += variant.PriceModifier
	}
	key := Key(product.ID, variantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		existing.Quantity += quantity
		c.items[key] = existing
		return existing, nil
	}

	item := domain.CartItem{
		Key:         key,
		ProductID:   product.ID,
		VariantID:   variantID,
		Name:        product.Name,
		VariantName: variantName,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
	}
	c.items[key] = item
	c.order = append(c.order, key)
	return item, nil
}

// SetQuantity updates the quantity of a line. Anything below 1 removes the
// line entirely.
func (c *Cart) SetQuantity(key string, quantity int) (domain.CartItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return domain.CartItem{}, false
	}
	if quantity < 1 {
		c.removeLocked(key)
		return domain.CartItem{}, true
	}
	item.Quantity = quantity
	c.items[key] = item
	return item, true
}

func (c *Cart) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok {
		return false
	}
	c.removeLocked(key)
	return true
}

func (c *Cart) removeLocked(key string) {
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]domain.CartItem)
	c.order = nil
}

// Items returns the lines in insertion order.
func (c *Cart) Items() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]domain.CartItem, 0, len(c.order))
	for _, key := range c.order {
		items = append(items, c.items[key])
	}
	return items
}

func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := int64(0)
	for _, item := range c.items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
